package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr default: %s", cfg.HTTPAddr)
	}
	if len(cfg.RadiiKm) != 4 || cfg.RadiiKm[3] != 20 {
		t.Errorf("radius ladder default: %v", cfg.RadiiKm)
	}
	if cfg.HeartbeatFreshness != 10*time.Minute {
		t.Errorf("freshness default: %s", cfg.HeartbeatFreshness)
	}
	if cfg.SweepMaxAgeMarketplace != 24*time.Hour {
		t.Errorf("marketplace sweep age default: %s", cfg.SweepMaxAgeMarketplace)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RADIUS_STEPS_KM", "3, 6, 12")
	t.Setenv("WALLET_MIN_BALANCE", "2500")
	t.Setenv("SWEEP_MAX_AGE_TRANSPORT", "45m")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.RadiiKm) != 3 || cfg.RadiiKm[0] != 3 || cfg.RadiiKm[2] != 12 {
		t.Errorf("radius override: %v", cfg.RadiiKm)
	}
	if cfg.WalletMinBalance != 2500 {
		t.Errorf("wallet floor override: %d", cfg.WalletMinBalance)
	}
	if cfg.SweepMaxAgeTransport != 45*time.Minute {
		t.Errorf("sweep age override: %s", cfg.SweepMaxAgeTransport)
	}
}

func TestRejectsBadRadii(t *testing.T) {
	t.Setenv("RADIUS_STEPS_KM", "10,5")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("non-increasing ladder must be rejected")
	}
	t.Setenv("RADIUS_STEPS_KM", "abc")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("non-numeric ladder must be rejected")
	}
}
