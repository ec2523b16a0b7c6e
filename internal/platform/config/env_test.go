package config

import "testing"

func TestParseEnvLoadsValues(t *testing.T) {
	t.Setenv("ROLLCALL_TEST_NAME", "tracker")
	t.Setenv("ROLLCALL_TEST_PORT", "9000")

	var cfg struct {
		Name string `env:"ROLLCALL_TEST_NAME"`
		Port int    `env:"ROLLCALL_TEST_PORT" envDefault:"8080"`
	}
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Name != "tracker" {
		t.Fatalf("name = %q, want %q", cfg.Name, "tracker")
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Port)
	}
}

func TestParseEnvAppliesDefaults(t *testing.T) {
	var cfg struct {
		Interval string `env:"ROLLCALL_TEST_UNSET_INTERVAL" envDefault:"15s"`
	}
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != "15s" {
		t.Fatalf("interval = %q, want %q", cfg.Interval, "15s")
	}
}
