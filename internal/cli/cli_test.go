package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"farmacia/m/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSeedReturnsVerify(t *testing.T) {
	cfg = config.Config{
		DatabaseDSN: filepath.Join(t.TempDir(), "farmacia.db"),
		SeedFile:    filepath.Join("..", "..", "assets", "medications.csv"),
	}

	out, err := run(t, "seed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "loaded 6 medications") {
		t.Fatalf("unexpected seed output: %q", out)
	}

	out, err = run(t, "returns", "--date", "2030-01-01", "--user", "owner")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "returned 6 medications") {
		t.Fatalf("unexpected returns output: %q", out)
	}

	out, err = run(t, "returns", "--date", "2030-01-01", "--user", "owner")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "returned 0 medications") {
		t.Fatalf("second sweep should be a no-op: %q", out)
	}

	out, err = run(t, "verify")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "consistent") {
		t.Fatalf("unexpected verify output: %q", out)
	}

	if _, err := run(t, "returns", "--date", "30/06/2030"); err == nil {
		t.Fatal("expected an error for a malformed date")
	}
}
