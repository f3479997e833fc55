package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_LOCATION", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.DefaultLocation != "STORE" {
		t.Fatalf("expected default location STORE, got %q", cfg.DefaultLocation)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected default report cache TTL 30, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %q", cfg.Address())
	}
}

func TestLoadRejectsBadNumericValues(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")
	t.Setenv("BACKUP_INTERVAL_MINUTES", "zero")

	cfg := Load()
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected fallback TTL 30, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.BackupIntervalMinutes != 60 {
		t.Fatalf("expected fallback backup interval 60, got %d", cfg.BackupIntervalMinutes)
	}
}
