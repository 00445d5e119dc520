package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(viper.New())
	if cfg.Mode != ModeOffline || cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.SlotTTL != 60*time.Second || cfg.SweepInterval != 5*time.Minute || cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("durations = %v %v %v", cfg.SlotTTL, cfg.SweepInterval, cfg.TokenTTL)
	}
	want := []string{"http://localhost:3000", "http://localhost:3010"}
	if got := cfg.CORSOrigins(); !reflect.DeepEqual(got, want) {
		t.Fatalf("offline origins = %v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRAINING_MODE", "ONLINE")
	t.Setenv("TRAINING_CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("TRAINING_SLOT_TTL", "90s")

	v := viper.New()
	v.SetEnvPrefix("TRAINING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cfg := Load(v)

	if cfg.Mode != ModeOnline {
		t.Fatalf("mode = %q", cfg.Mode)
	}
	if got := cfg.CORSOrigins(); !reflect.DeepEqual(got, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("online origins = %v", got)
	}
	if cfg.SlotTTL != 90*time.Second {
		t.Fatalf("slot ttl = %v", cfg.SlotTTL)
	}
}

func TestLoad_UnknownModeFallsBackToOffline(t *testing.T) {
	v := viper.New()
	v.Set("mode", "cloud")
	if cfg := Load(v); cfg.Mode != ModeOffline {
		t.Fatalf("mode = %q", cfg.Mode)
	}
}
