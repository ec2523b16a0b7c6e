package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

func TestParseConfigFromArgsLayersFlagsOverEnv(t *testing.T) {
	t.Setenv("ROLLCALL_ENTRYPOINT_TEST_PORT", "7000")

	var cfg struct {
		Port int `env:"ROLLCALL_ENTRYPOINT_TEST_PORT" envDefault:"8080"`
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port")
	if err := ParseArgs(fs, []string{"-port", "7500"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if cfg.Port != 7500 {
		t.Fatalf("port = %d, want 7500", cfg.Port)
	}
}

func TestRunWithTelemetryRequiresServiceName(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	wantErr := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), ServiceTracker, func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
