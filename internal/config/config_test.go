package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAutorateConfig() *AutorateConfig {
	cfg := DefaultAutorateConfig()
	cfg.Router.Host = "192.168.1.1"
	cfg.Router.User = "admin"
	cfg.Router.Password = "secret"
	return cfg
}

func validSteerConfig() *SteerConfig {
	cfg := DefaultSteerConfig()
	cfg.Router.Host = "192.168.1.1"
	cfg.Router.User = "admin"
	cfg.Router.Password = "secret"
	return cfg
}

func TestValidateAutorate_DefaultsPassValidation(t *testing.T) {
	require.NoError(t, validateAutorate(validAutorateConfig()))
}

func TestValidateAutorate_RejectsNonMonotonicDownloadFloors(t *testing.T) {
	cfg := validAutorateConfig()
	cfg.Download.Floors.SoftRed = cfg.Download.Floors.Yellow + 1
	err := validateAutorate(cfg)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Error(), "download floors must be monotonic")
}

func TestValidateAutorate_RejectsThresholdOrdering(t *testing.T) {
	cfg := validAutorateConfig()
	cfg.Thresholds.SoftRedMs = cfg.Thresholds.RedMs + 1
	err := validateAutorate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.(*ValidationError).Error(), "yellow_ms < soft_red_ms < red_ms")
}

func TestValidateAutorate_RejectsUpSamplesNotSmallerThanDown(t *testing.T) {
	cfg := validAutorateConfig()
	cfg.Thresholds.UpSamplesRequired = cfg.Thresholds.DownSamplesRequired
	err := validateAutorate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.(*ValidationError).Error(), "asymmetric hysteresis")
}

func TestValidateAutorate_RejectsMissingRequiredFields(t *testing.T) {
	cfg := validAutorateConfig()
	cfg.Router.Host = ""
	err := validateAutorate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.(*ValidationError).Error(), "Host")
}

func TestValidateSteer_DefaultsPassValidation(t *testing.T) {
	require.NoError(t, validateSteer(validSteerConfig()))
}

func TestValidateSteer_RejectsRedNotSmallerThanGreen(t *testing.T) {
	cfg := validSteerConfig()
	cfg.RedSamplesRequired = cfg.GreenSamplesRequired
	err := validateSteer(cfg)
	require.Error(t, err)
	assert.Contains(t, err.(*ValidationError).Error(), "recovery is intentionally slower")
}

func TestApplyRouterEnvOverrides(t *testing.T) {
	t.Setenv("WANCTL_ROUTER_HOST", "10.0.0.1")
	t.Setenv("WANCTL_ROUTER_USER", "envuser")
	defer os.Unsetenv("WANCTL_ROUTER_HOST")
	defer os.Unsetenv("WANCTL_ROUTER_USER")

	r := RouterConfig{Host: "192.168.1.1", User: "admin"}
	applyRouterEnvOverrides(&r)
	assert.Equal(t, "10.0.0.1", r.Host)
	assert.Equal(t, "envuser", r.User)
}

func TestApplyHealthEnvOverrides_NoopWhenUnset(t *testing.T) {
	h := HealthConfig{Port: 9101}
	applyHealthEnvOverrides(&h)
	assert.Equal(t, 9101, h.Port, "absent env var must leave the configured port untouched")
}

func TestResolvedPassword_PrefersInlineOverEnv(t *testing.T) {
	t.Setenv("ROUTER_PW_TEST", "from-env")
	defer os.Unsetenv("ROUTER_PW_TEST")

	r := RouterConfig{Password: "inline", PasswordEnv: "ROUTER_PW_TEST"}
	assert.Equal(t, "inline", r.ResolvedPassword())

	r2 := RouterConfig{PasswordEnv: "ROUTER_PW_TEST"}
	assert.Equal(t, "from-env", r2.ResolvedPassword())
}
