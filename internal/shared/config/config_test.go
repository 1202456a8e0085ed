package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToSQLite(t *testing.T) {
	for _, key := range []string{"AGLM_DB_DRIVER", "AGLM_WORKER_COUNT", "QUEUE_HTTP_ADDR"} {
		os.Unsetenv(key)
	}
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 2, cfg.WorkerCount)
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadModelBaseURLFallback(t *testing.T) {
	os.Unsetenv("PHONE_AGENT_BASE_URL")
	os.Setenv("AGLM_MODEL_BASE_URL", "http://model.internal")
	defer os.Unsetenv("AGLM_MODEL_BASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://model.internal", cfg.ModelBaseURL)
}

func TestLoadPhoneAgentBaseURLTakesPriority(t *testing.T) {
	os.Setenv("PHONE_AGENT_BASE_URL", "http://phone.internal")
	os.Setenv("AGLM_MODEL_BASE_URL", "http://model.internal")
	defer os.Unsetenv("PHONE_AGENT_BASE_URL")
	defer os.Unsetenv("AGLM_MODEL_BASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://phone.internal", cfg.ModelBaseURL)
}

func TestDeployTimeoutFallsBackToCmdTimeout(t *testing.T) {
	os.Unsetenv("AGLM_DEPLOY_TIMEOUT")
	os.Setenv("AGLM_CMD_TIMEOUT", "240")
	defer os.Unsetenv("AGLM_CMD_TIMEOUT")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 240, cfg.DeployTimeout)
}
