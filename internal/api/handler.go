package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"farmacia/m/domain"
	"farmacia/m/internal/database"
	"farmacia/m/internal/inventory"
	"farmacia/m/internal/pos"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// Services are the core components exposed over HTTP.
type Services struct {
	Catalog *inventory.Catalog
	Ledger  *inventory.Ledger
	Returns *inventory.ReturnSweep
	Sales   *pos.SaleProcessor
	Drawer  *pos.Drawer
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db       *sqlx.DB
	secret   string
	tokenTTL time.Duration
	svc      Services
	log      zerolog.Logger
	now      func() time.Time
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, tokenTTL time.Duration, svc Services, log zerolog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{db: db, secret: secret, tokenTTL: tokenTTL, svc: svc, log: log, now: time.Now}
}

// Router wires up the HTTP API. Role checks here are the permission gate;
// the core only requires a non-empty user id on every mutation.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.With(h.requireRole(domain.RoleOwner)).Post("/users", h.createUser)

		pr.Route("/categories", func(r chi.Router) {
			r.Get("/", h.listCategories)
			r.Get("/{id}", h.getCategory)
			r.With(h.requireRole(domain.RoleOwner)).Post("/", h.createCategory)
			r.With(h.requireRole(domain.RoleOwner)).Put("/{id}", h.updateCategory)
			r.With(h.requireRole(domain.RoleOwner)).Delete("/{id}", h.deleteCategory)
		})

		pr.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.listSuppliers)
			r.Get("/{id}", h.getSupplier)
			r.With(h.requireRole(domain.RoleOwner)).Post("/", h.createSupplier)
			r.With(h.requireRole(domain.RoleOwner)).Put("/{id}", h.updateSupplier)
			r.With(h.requireRole(domain.RoleOwner)).Delete("/{id}", h.deleteSupplier)
		})

		pr.Route("/medications", func(r chi.Router) {
			r.Get("/", h.listMedications)
			r.Get("/low-stock", h.lowStock)
			r.Get("/expiring", h.expiring)
			r.Get("/{id}", h.getMedication)
			r.Get("/{id}/history", h.medicationHistory)
			r.Group(func(owner chi.Router) {
				owner.Use(h.requireRole(domain.RoleOwner))
				owner.Post("/", h.createMedication)
				owner.Put("/{id}", h.updateMedication)
				owner.Post("/{id}/disable", h.disableMedication)
				owner.Post("/{id}/enable", h.enableMedication)
				owner.Post("/{id}/entries", h.appendEntry)
				owner.Get("/{id}/reconcile", h.reconcileMedication)
			})
		})

		pr.Route("/ledger", func(r chi.Router) {
			r.Use(h.requireRole(domain.RoleOwner))
			r.Get("/", h.listLedger)
			r.Get("/reconcile", h.reconcileAll)
		})

		pr.With(h.requireRole(domain.RoleOwner)).Post("/returns/sweep", h.runReturns)

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/quote", h.quoteSale)
			r.Post("/", h.createSale)
			r.Get("/{id}", h.getSale)
			r.With(h.requireRole(domain.RoleOwner)).Post("/{id}/cancel", h.cancelSale)
		})

		pr.Route("/drawer", func(r chi.Router) {
			r.Get("/", h.drawerState)
			r.Post("/open", h.openDrawer)
			r.Post("/close", h.closeDrawer)
			r.Get("/sessions", h.drawerSessions)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/sales/daily", h.dailySales)
			r.Get("/sales/monthly", h.monthlySales)
			r.With(h.requireRole(domain.RoleOwner)).Get("/sales", h.salesReport)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Authentication helpers

type authClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(user domain.User) (string, error) {
	now := h.now()
	claims := authClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.Username == "" {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, _ := r.Context().Value(ctxRole).(string)
			if current == "" {
				respondError(w, http.StatusUnauthorized, "missing role")
				return
			}
			for _, role := range allowed {
				if current == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

// actor is the identity passed to the core as user id or cashier.
func actor(r *http.Request) string {
	name, _ := r.Context().Value(ctxUsername).(string)
	return name
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

var (
	errRegistrationClosed = errors.New("registration is closed")
	errFirstUserNotOwner  = errors.New("the first account must be an owner")
	errDuplicateUser      = errors.New("username or email already exists")
)

func (req registerRequest) validate() string {
	if strings.TrimSpace(req.Username) == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		return "username, email, password and role are required"
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleEmployee {
		return "role must be owner or employee"
	}
	return ""
}

// register is open only until the store has an owner. It creates that
// first owner; every later account goes through createUser.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.insertUser(r.Context(), req, func(tx *sqlx.Tx) error {
		var owners int
		if err := tx.GetContext(r.Context(), &owners, `SELECT COUNT(*) FROM users WHERE role = ?`, domain.RoleOwner); err != nil {
			return err
		}
		if owners > 0 {
			return errRegistrationClosed
		}
		if req.Role != domain.RoleOwner {
			return errFirstUserNotOwner
		}
		return nil
	})
	if err != nil {
		h.respondUserError(w, r, err)
		return
	}

	token, err := h.generateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// createUser lets an authenticated owner add owner or employee accounts.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.insertUser(r.Context(), req, nil)
	if err != nil {
		h.respondUserError(w, r, err)
		return
	}
	h.log.Info().
		Str("username", user.Username).
		Str("role", user.Role).
		Str("created_by", actor(r)).
		Msg("user created")
	respondJSON(w, http.StatusCreated, user)
}

// insertUser hashes the password and stores the account. check, when set,
// runs first inside the same transaction.
func (h *Handler) insertUser(ctx context.Context, req registerRequest, check func(tx *sqlx.Tx) error) (domain.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{Username: strings.TrimSpace(req.Username), Email: strings.ToLower(req.Email), Role: req.Role}
	err = database.WithTx(ctx, h.db, func(tx *sqlx.Tx) error {
		if check != nil {
			if err := check(tx); err != nil {
				return err
			}
		}
		var taken int
		if err := tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
			user.Username, user.Email); err != nil {
			return err
		}
		if taken > 0 {
			return errDuplicateUser
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO users (username, email, password, role) VALUES (?, ?, ?, ?)`,
			user.Username, user.Email, string(hashed), user.Role)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		user.ID, err = res.LastInsertId()
		return err
	})
	return user, err
}

func (h *Handler) respondUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errRegistrationClosed):
		respondError(w, http.StatusForbidden, "registration is closed; ask an owner to create the account")
	case errors.Is(err, errFirstUserNotOwner):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errDuplicateUser):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("user registration failed")
		respondError(w, http.StatusInternalServerError, "unable to complete registration")
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.GetContext(r.Context(), &user, `SELECT id, username, email, password, role FROM users WHERE email = ?`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid, _ := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `UPDATE users SET password = ? WHERE id = ?`, string(hashed), uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondCoreError maps core errors onto HTTP statuses.
func (h *Handler) respondCoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInUse):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMissingReason),
		errors.Is(err, domain.ErrValidationFailed):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
