package config

import (
	"testing"
	"time"
)

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("TRIGGER_SUBJECT", "")
	t.Setenv("COMPLETION_SUBJECT", "")
	t.Setenv("OUTPUT_PREFIX", "")
	t.Setenv("CLASSIFY_CONCURRENCY", "")
	t.Setenv("SUSPEND_TTL_HOURS", "")

	cfg := Load()
	if cfg.TriggerSubject != "documents.uploaded" {
		t.Fatalf("expected default trigger subject, got %q", cfg.TriggerSubject)
	}
	if cfg.CompletionSubject != "extraction.completed" {
		t.Fatalf("expected default completion subject, got %q", cfg.CompletionSubject)
	}
	if cfg.OutputPrefix != "_detectText" {
		t.Fatalf("expected default output prefix, got %q", cfg.OutputPrefix)
	}
	if cfg.ClassifyConcurrency != 10 || cfg.DispatchConcurrency != 10 {
		t.Fatalf("expected stage ceilings of 10, got %d/%d", cfg.ClassifyConcurrency, cfg.DispatchConcurrency)
	}
	if cfg.SuspendTTL != 24*time.Hour {
		t.Fatalf("expected 24h suspension ceiling, got %v", cfg.SuspendTTL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TRIGGER_SUBJECT", "docs.in")
	t.Setenv("SUSPEND_TTL_HOURS", "6")
	t.Setenv("JOB_STARTS_PER_SECOND", "0.5")
	t.Setenv("DISPATCH_CONCURRENCY", "4")

	cfg := Load()
	if cfg.TriggerSubject != "docs.in" {
		t.Fatalf("expected subject override, got %q", cfg.TriggerSubject)
	}
	if cfg.SuspendTTL != 6*time.Hour {
		t.Fatalf("expected 6h suspension ceiling, got %v", cfg.SuspendTTL)
	}
	if cfg.JobStartsPerSecond != 0.5 {
		t.Fatalf("expected job start rate override, got %v", cfg.JobStartsPerSecond)
	}
	if cfg.DispatchConcurrency != 4 {
		t.Fatalf("expected dispatch ceiling 4, got %d", cfg.DispatchConcurrency)
	}
}

func TestLoadFallsBackOnUnparsableNumbers(t *testing.T) {
	t.Setenv("CLASSIFY_CONCURRENCY", "lots")
	t.Setenv("JOB_STARTS_PER_SECOND", "fast")

	cfg := Load()
	if cfg.ClassifyConcurrency != 10 {
		t.Fatalf("expected fallback ceiling 10, got %d", cfg.ClassifyConcurrency)
	}
	if cfg.JobStartsPerSecond != 2 {
		t.Fatalf("expected fallback rate 2, got %v", cfg.JobStartsPerSecond)
	}
}
