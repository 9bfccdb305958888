package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: Config{
				Secret: "dev_secret", DatabaseDSN: "farmacia.db", HTTPPort: "8080",
				SeedFile: "assets/medications.csv", TokenTTL: 24 * time.Hour,
				LogLevel: "info", LogFormat: "console",
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"SECRET": "s3cret", "DATABASE_DSN": ":memory:", "HTTP_PORT": "9090",
				"SEED_FILE": "/tmp/catalog.csv", "TOKEN_TTL": "2h", "LOG_LEVEL": "debug", "LOG_FORMAT": "json",
			},
			want: Config{
				Secret: "s3cret", DatabaseDSN: ":memory:", HTTPPort: "9090",
				SeedFile: "/tmp/catalog.csv", TokenTTL: 2 * time.Hour,
				LogLevel: "debug", LogFormat: "json",
			},
		},
		{
			name: "invalid values fall back",
			env:  map[string]string{"HTTP_PORT": "http", "TOKEN_TTL": "soon"},
			want: Config{
				Secret: "dev_secret", DatabaseDSN: "farmacia.db", HTTPPort: "8080",
				SeedFile: "assets/medications.csv", TokenTTL: 24 * time.Hour,
				LogLevel: "info", LogFormat: "console",
			},
		},
	}

	keys := []string{"SECRET", "DATABASE_DSN", "HTTP_PORT", "SEED_FILE", "TOKEN_TTL", "LOG_LEVEL", "LOG_FORMAT"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, tt.env[k])
			}
			got, err := Load()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	lc := cfg.LoggerConfig()
	if lc.Level != "warn" || lc.Format != "json" {
		t.Fatalf("unexpected logger config: %+v", lc)
	}
}
