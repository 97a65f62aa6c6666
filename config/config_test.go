package config

import (
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/loomnet/loom/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	setDefaults()

	cfg := fromViper()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Transport.RequireAuth)
	assert.Empty(t, cfg.Transport.AllowedCIDRs)
	assert.Empty(t, cfg.Transport.Listen)
	assert.False(t, cfg.Transport.MaxPeers.Valid, "absent max_peers means unlimited")
	assert.Empty(t, cfg.Node.KeyFile)
}

func TestMaxPeersParsing(t *testing.T) {
	viper.Reset()
	setDefaults()

	viper.Set("transport.max_peers", 5)

	cfg := fromViper()

	require.True(t, cfg.Transport.MaxPeers.Valid)
	assert.Equal(t, uint(5), cfg.Transport.MaxPeers.Val)

	viper.Set("transport.max_peers", 0)

	cfg = fromViper()

	require.True(t, cfg.Transport.MaxPeers.Valid, "zero is a real cap, not unlimited")
	assert.Equal(t, uint(0), cfg.Transport.MaxPeers.Val)
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "loom.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
transport:
  require_auth: true
  allowed_cidrs:
    - 10.0.0.0/8
    - 127.0.0.0/8
  max_peers: 16
  listen:
    - tcp://127.0.0.1:7400
    - unix:///run/loom.sock
node:
  key_file: /var/lib/loom/node.key
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Transport.RequireAuth)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.0/8"}, cfg.Transport.AllowedCIDRs)
	require.True(t, cfg.Transport.MaxPeers.Valid)
	assert.Equal(t, uint(16), cfg.Transport.MaxPeers.Val)
	assert.Equal(t, "/var/lib/loom/node.key", cfg.Node.KeyFile)

	eps, err := cfg.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, []types.Endpoint{
		types.TCP{Host: "127.0.0.1", Port: 7400},
		types.Unix{Path: "/run/loom.sock"},
	}, eps)

	ps, err := cfg.Prefixes()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.0/8"),
	}, ps)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	viper.Reset()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEndpointsRejectsGarbage(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Listen: []string{"not an endpoint"}}}

	_, err := cfg.Endpoints()
	assert.Error(t, err)
}

func TestPrefixesRejectsGarbage(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{AllowedCIDRs: []string{"10.0.0.0"}}}

	_, err := cfg.Prefixes()
	assert.Error(t, err)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{Log: LogConfig{Level: "debug"}}).Level())
	assert.Equal(t, slog.LevelWarn, (&Config{Log: LogConfig{Level: "WARN"}}).Level())
	assert.Equal(t, slog.LevelInfo, (&Config{Log: LogConfig{Level: "nonsense"}}).Level())
}
