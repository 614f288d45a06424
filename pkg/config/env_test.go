package config

import (
	"os"
	"testing"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_GET_ENV_VAR", "test_value")

	if got := GetEnv("TEST_GET_ENV_VAR", "default"); got != "test_value" {
		t.Errorf("GetEnv() = %v, want test_value", got)
	}
	if got := GetEnv("NON_EXISTING_VAR", "default_value"); got != "default_value" {
		t.Errorf("GetEnv() = %v, want default_value", got)
	}
}

func TestRequireEnv(t *testing.T) {
	t.Setenv("TEST_REQUIRE_ENV_VAR", "required_value")

	if got := RequireEnv("TEST_REQUIRE_ENV_VAR"); got != "required_value" {
		t.Errorf("RequireEnv() = %v, want required_value", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("RequireEnv() should panic for a missing variable")
		}
	}()
	RequireEnv("DEFINITELY_NON_EXISTING_VAR_12345")
}

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		envValue string
		want     string
	}{
		{"development", "development"},
		{"DEVELOPMENT", "development"},
		{"staging", "staging"},
		{"production", "production"},
		{"PRODUCTION", "production"},
		{"", "development"},
	}

	for _, tt := range tests {
		if tt.envValue == "" {
			os.Unsetenv("BATCHFLOW_SERVER_ENVIRONMENT")
		} else {
			t.Setenv("BATCHFLOW_SERVER_ENVIRONMENT", tt.envValue)
		}

		if got := GetEnvironment(); got != tt.want {
			t.Errorf("GetEnvironment() with %q = %v, want %v", tt.envValue, got, tt.want)
		}
	}
}

func TestEnvironmentPredicates(t *testing.T) {
	tests := []struct {
		env            string
		isDev          bool
		isStaging      bool
		isProd         bool
		productionLike bool
	}{
		{"development", true, false, false, false},
		{"staging", false, true, false, true},
		{"production", false, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("BATCHFLOW_SERVER_ENVIRONMENT", tt.env)

			if got := IsDevelopment(); got != tt.isDev {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.isDev)
			}
			if got := IsStaging(); got != tt.isStaging {
				t.Errorf("IsStaging() = %v, want %v", got, tt.isStaging)
			}
			if got := IsProduction(); got != tt.isProd {
				t.Errorf("IsProduction() = %v, want %v", got, tt.isProd)
			}
			if got := IsProductionLike(); got != tt.productionLike {
				t.Errorf("IsProductionLike() = %v, want %v", got, tt.productionLike)
			}
		})
	}
}
