package config

import (
	"testing"
	"time"
)

func TestEnvDurationDefault(t *testing.T) {
	t.Setenv("RS_TEST_DUR", "45m")
	if got := envDurationDefault("RS_TEST_DUR", time.Hour); got != 45*time.Minute {
		t.Fatalf("got %v want 45m", got)
	}
	t.Setenv("RS_TEST_DUR", "garbage")
	if got := envDurationDefault("RS_TEST_DUR", time.Hour); got != time.Hour {
		t.Fatalf("bad value should fall back, got %v", got)
	}
	if got := envDurationDefault("RS_TEST_DUR_UNSET", 2*time.Hour); got != 2*time.Hour {
		t.Fatalf("unset should fall back, got %v", got)
	}
}

func TestEnvInt64Default(t *testing.T) {
	t.Setenv("RS_TEST_INT", "500")
	if got := envInt64Default("RS_TEST_INT", 0); got != 500 {
		t.Fatalf("got %d want 500", got)
	}
	t.Setenv("RS_TEST_INT", "nope")
	if got := envInt64Default("RS_TEST_INT", 7); got != 7 {
		t.Fatalf("bad value should fall back, got %d", got)
	}
}

func TestEnvBoolDefault(t *testing.T) {
	t.Setenv("RS_TEST_BOOL", "false")
	if envBoolDefault("RS_TEST_BOOL", true) {
		t.Fatalf("expected explicit false to win")
	}
	if !envBoolDefault("RS_TEST_BOOL_UNSET", true) {
		t.Fatalf("unset should fall back to true")
	}
}

func TestLoadAPIRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/runesmith")
	t.Setenv("PORT", "9090")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("PORT should gain a colon prefix, got %q", cfg.Addr)
	}
	if !cfg.SingleSale {
		t.Fatalf("single-sale should default on")
	}
}
