package nodecfg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DIG_HOME", "/tmp/custom-dig-home")
	t.Setenv("DIG_PORT", "5555")
	t.Setenv("DIG_NETWORK_ID", "testnet")
	t.Setenv("DIG_BOOTSTRAP_NODES", "https://a.example,https://b.example")

	cfg := Default()
	cfg.ApplyEnv()

	require.Equal(t, "/tmp/custom-dig-home", cfg.DigHome)
	require.Equal(t, 5555, cfg.Port)
	require.Equal(t, "testnet", cfg.NetworkID)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.BootstrapServers)
}

func TestApplyEnvIgnoresInvalidPort(t *testing.T) {
	t.Setenv("DIG_PORT", "not-a-number")
	cfg := Default()
	cfg.ApplyEnv()
	require.Equal(t, 0, cfg.Port)
}

func TestValidateRejectsEmptyHome(t *testing.T) {
	cfg := Default()
	cfg.DigHome = ""
	require.Error(t, cfg.Validate())
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("not_a_real_field: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = LoadYAML(Default(), f.Name())
	require.Error(t, err)
}

func TestLoadYAMLLayersOverBase(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("network_id: devnet\nport: 9001\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := LoadYAML(Default(), f.Name())
	require.NoError(t, err)
	require.Equal(t, "devnet", out.NetworkID)
	require.Equal(t, 9001, out.Port)
	require.True(t, out.EnableDHT) // inherited from base
}
