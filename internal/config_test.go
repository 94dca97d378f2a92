package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	opts := cfg.ServiceOptions()
	if opts.Parser.TabWidth != 4 || opts.Rank.Damping != 0.85 {
		t.Errorf("service options = %+v", opts)
	}
}

func TestGraphConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		cfg  GraphConfig
		ok   bool
	}{
		{"defaults", GraphConfig{Root: "g", TabWidth: 4}, true},
		{"zero tab width means default", GraphConfig{Root: "g"}, true},
		{"missing root", GraphConfig{TabWidth: 4}, false},
		{"huge tab width", GraphConfig{Root: "g", TabWidth: 64}, false},
		{"negative workers", GraphConfig{Root: "g", Workers: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestPageRankConfig_Validation(t *testing.T) {
	for _, d := range []float64{0, 1, 1.5} {
		cfg := PageRankConfig{Damping: d, Epsilon: 1e-6, MaxIter: 10}
		if err := cfg.Validate(); err == nil {
			t.Errorf("damping %v should fail", d)
		}
	}
	cfg := PageRankConfig{Damping: 0.5, Epsilon: 1e-3, MaxIter: 10}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config failed: %v", err)
	}
}
