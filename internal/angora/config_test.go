package angora

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	clearAngoraEnv(t)

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 100, cfg.InstRatio)
	require.Equal(t, EarlyTerminationStatic, cfg.EarlyTermination)
	require.False(t, cfg.EarlyAggressive)
	require.True(t, cfg.ContextsEnabled())
}

func TestLoadConfigFromEnv_InstRatioZeroAllowed(t *testing.T) {
	clearAngoraEnv(t)
	t.Setenv("ANGORA_INST_RATIO", "0")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.InstRatio)
}

func TestLoadConfigFromEnv_InstRatioOutOfRange(t *testing.T) {
	clearAngoraEnv(t)
	t.Setenv("ANGORA_INST_RATIO", "101")

	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}

func TestLoadConfigFromEnv_CustomFnCtxZeroDisablesContexts(t *testing.T) {
	clearAngoraEnv(t)
	t.Setenv("CUSTOM_FN_CTX", "0")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.False(t, cfg.ContextsEnabled())
	k, ok := cfg.ContextShiftK()
	require.False(t, ok)
	require.Equal(t, 0, k)
}

func TestLoadConfigFromEnv_CustomFnCtxDepth(t *testing.T) {
	clearAngoraEnv(t)
	t.Setenv("CUSTOM_FN_CTX", "4")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.True(t, cfg.ContextsEnabled())
	k, ok := cfg.ContextShiftK()
	require.True(t, ok)
	require.Equal(t, 4, k)
}

func TestLoadConfigFromEnv_EarlyTerminationModes(t *testing.T) {
	clearAngoraEnv(t)
	t.Setenv("ANGORA_EARLY_TERMINATION", "full")
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, EarlyTerminationFull, cfg.EarlyTermination)

	clearAngoraEnv(t)
	t.Setenv("ANGORA_EARLY_TERMINATION", "off")
	cfg, err = LoadConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, EarlyTerminationOff, cfg.EarlyTermination)
}

func clearAngoraEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ANGORA_INST_RATIO", "ANGORA_EARLY_TERMINATION", "ANGORA_EARLY_AGGRESSIVE",
		"OUTPUT_COND_LOC_VAR", "CUSTOM_FN_CTX",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}
