package config

import (
	"path/filepath"
	"testing"
	"time"
)

type recordingObserver struct {
	updates []*Config
}

func (o *recordingObserver) OnConfigUpdate(cfg *Config) {
	o.updates = append(o.updates, cfg)
}

func TestLiveConfig_UpdateNotifiesObservers(t *testing.T) {
	lc := NewLiveConfig(nil)
	obs := &recordingObserver{}
	lc.AddObserver(obs)
	lc.AddObserver(nil)

	next := Defaults()
	next.Cache.Lifetime = 10 * time.Minute
	if err := lc.Update(next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lc.Get().Cache.Lifetime != 10*time.Minute {
		t.Errorf("expected new lifetime, got %v", lc.Get().Cache.Lifetime)
	}
	if len(obs.updates) != 1 || obs.updates[0].Cache.Lifetime != 10*time.Minute {
		t.Errorf("expected one observer update, got %+v", obs.updates)
	}
}

func TestLiveConfig_InvalidUpdateKeepsCurrent(t *testing.T) {
	lc := NewLiveConfig(Defaults())
	obs := &recordingObserver{}
	lc.AddObserver(obs)

	bad := Defaults()
	bad.Cache.Lifetime = 0
	err := lc.Update(bad)
	if _, ok := err.(*ConfigValidationError); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}

	if lc.Get().Cache.Lifetime != 5*time.Minute {
		t.Errorf("expected previous config to remain, got %v", lc.Get().Cache.Lifetime)
	}
	if len(obs.updates) != 0 {
		t.Error("expected no observer notification")
	}
}

func TestLiveConfig_GetReturnsCopy(t *testing.T) {
	lc := NewLiveConfig(Defaults())

	cfg := lc.Get()
	cfg.Dashboard.AllowedOrigins[0] = "https://changed.example.com"

	if lc.Get().Dashboard.AllowedOrigins[0] != "*" {
		t.Error("expected Get to return an independent copy")
	}
}

func TestLiveConfig_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.yaml")
	writeConfigFile(t, path, "cache:\n  lifetime: 2m\n")

	lc := NewLiveConfig(Defaults())
	obs := &recordingObserver{}
	lc.AddObserver(obs)
	before := lc.LastUpdated()

	if err := lc.Reload(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.Get().Cache.Lifetime != 2*time.Minute {
		t.Errorf("expected reloaded lifetime, got %v", lc.Get().Cache.Lifetime)
	}
	if lc.LastUpdated().Before(before) {
		t.Error("expected last updated to move forward")
	}

	// An edit to the file is picked up by the next reload.
	writeConfigFile(t, path, "cache:\n  lifetime: 7m\n")
	if err := lc.Reload(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.Get().Cache.Lifetime != 7*time.Minute {
		t.Errorf("expected edited lifetime, got %v", lc.Get().Cache.Lifetime)
	}
	if len(obs.updates) != 2 {
		t.Errorf("expected 2 observer updates, got %d", len(obs.updates))
	}
}

func TestLiveConfig_ReloadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.yaml")
	writeConfigFile(t, path, "cache:\n  lifetime: 0s\n")

	lc := NewLiveConfig(Defaults())

	err := lc.Reload(path)
	if _, ok := err.(*ConfigValidationError); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := lc.Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if lc.Get().Cache.Lifetime != 5*time.Minute {
		t.Errorf("expected previous config to remain, got %v", lc.Get().Cache.Lifetime)
	}
}
