package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/amex"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/transport"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "HOSTS_FILE", "DATABASE_PATH", "ONLINE_TIMEOUT", "CONNECT_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./hosts.yaml", cfg.HostsFile)
	assert.Equal(t, "./data/batch.db", cfg.DatabasePath)
	assert.Equal(t, "@every 60s", cfg.EchoSchedule)
	assert.Equal(t, 30*time.Second, cfg.OnlineTimeout)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "terminal.env")
	require.NoError(t, os.WriteFile(env, []byte("ADMIN_ADDR=:9090\nONLINE_TIMEOUT=5s\n"), 0o600))
	t.Setenv("ADMIN_ADDR", "")
	t.Setenv("ONLINE_TIMEOUT", "")
	os.Unsetenv("ADMIN_ADDR")
	os.Unsetenv("ONLINE_TIMEOUT")

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AdminAddr)
	assert.Equal(t, 5*time.Second, cfg.OnlineTimeout)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONNECT_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "CONNECT_TIMEOUT")

	cfg := &Config{HostsFile: "h.yaml", DatabasePath: "b.db", OnlineTimeout: time.Second, ConnectTimeout: time.Second}
	assert.NoError(t, cfg.Validate())
	cfg.ConnectTimeout = -1
	assert.Error(t, cfg.Validate())
	cfg.ConnectTimeout = time.Second
	cfg.DatabasePath = ""
	assert.Error(t, cfg.Validate())
}

const hostsYAML = `
amex:
  origin: POS01
  country_code: 458
  region: APA
  routing_indicator: "01"
hosts:
  - index: 2
    name: amex
    protocol: amex
    endpoint: 127.0.0.1:5002
    tpdu: "6003210000"
    nii: 321
    tid: AMEX0001
    mid: AMEXMERCHANT001
  - index: 1
    name: diners
    protocol: Diners
    endpoint: 127.0.0.1:5001
    tls: true
    tpdu: "6001230000"
    nii: 123
    tid: TERM0001
    mid: MERCHANT0000001
    currency: "458"
`

func TestParseHosts(t *testing.T) {
	h, err := ParseHosts([]byte(hostsYAML))
	require.NoError(t, err)

	assert.Equal(t, amex.Config{Origin: "POS01", CountryCode: 458, Region: "APA", RoutingIndicator: "01"}, h.Amex)

	def, ok := h.HostDefinition(1)
	require.True(t, ok)
	assert.Equal(t, hostswitch.ProtocolDiners, def.Protocol)
	assert.True(t, def.TLS)
	assert.Equal(t, uint32(123), def.NII)

	_, ok = h.HostDefinition(3)
	assert.False(t, ok)

	defs := h.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "diners", defs[0].Name)
	assert.Equal(t, "amex", defs[1].Name)
}

func TestParseHostsRejects(t *testing.T) {
	tests := map[string]string{
		"no hosts":       `hosts: []`,
		"bad protocol":   "hosts:\n  - {index: 1, name: a, protocol: visa, endpoint: x:1, tpdu: \"6000000000\"}",
		"short tpdu":     "hosts:\n  - {index: 1, name: a, protocol: fdms, endpoint: x:1, tpdu: \"600000\"}",
		"zero index":     "hosts:\n  - {index: 0, name: a, protocol: fdms, endpoint: x:1, tpdu: \"6000000000\"}",
		"no endpoint":    "hosts:\n  - {index: 1, name: a, protocol: fdms, tpdu: \"6000000000\"}",
		"amex no config": "hosts:\n  - {index: 1, name: a, protocol: amex, endpoint: x:1, tpdu: \"6000000000\"}",
		"duplicate index": "hosts:\n  - {index: 1, name: a, protocol: fdms, endpoint: x:1, tpdu: \"6000000000\"}\n" +
			"  - {index: 1, name: b, protocol: fdms, endpoint: x:2, tpdu: \"6000000000\"}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHosts([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidHosts)
		})
	}

	_, err := ParseHosts([]byte("amex: {origin: P, country_code: 458, region: AP, routing_indicator: \"01\"}\n" +
		"hosts:\n  - {index: 1, name: a, protocol: amex, endpoint: x:1, tpdu: \"6000000000\"}"))
	assert.ErrorIs(t, err, amex.ErrInvalidConfig)
}

func TestTransportFactory(t *testing.T) {
	h, err := ParseHosts([]byte(hostsYAML))
	require.NoError(t, err)
	cfg := &Config{OnlineTimeout: time.Second, ConnectTimeout: time.Second}
	factory := h.TransportFactory(cfg, zerolog.Nop(), nil)

	c := factory("diners")
	require.NotNil(t, c)
	assert.IsType(t, &transport.TCPClient{}, c)
	assert.Nil(t, factory("visa"))
}

func TestLoadHostsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(hostsYAML), 0o600))
	h, err := LoadHosts(path)
	require.NoError(t, err)
	_, ok := h.ByName("amex")
	assert.True(t, ok)

	_, err = LoadHosts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
