package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-dispatch/core/message"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dispatchd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("NATS_URL", "")

	cfg, err := LoadConfig(writeConfig(t, `
node:
  id: node-1
  addresses: [orders]
transport:
  kind: nats
  url: nats://localhost:4222
codec: msgpack
dispatch:
  target: header:route
  mode: all
  queue_capacity: 16
  workers: 2
  reply_timeout: 3s
units:
  - id: up
    type: upper
  - type: set_header
    key: processed
    value: "yes"
metrics:
  listen: ":9090"
`))
	require.NoError(t, err)

	require.Equal(t, "node-1", cfg.Node.ID)
	require.Equal(t, []string{"orders"}, cfg.Node.Addresses)
	require.Equal(t, "nats", cfg.Transport.Kind)
	require.Equal(t, "clstr", cfg.Transport.SubjectPrefix)
	require.Equal(t, "msgpack", cfg.Codec)
	require.Equal(t, 16, *cfg.Dispatch.QueueCapacity)
	require.Equal(t, 3*time.Second, cfg.Dispatch.ReplyTimeout)

	units, err := cfg.units()
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, "up", units[0].ID())
	require.Equal(t, "set_header-1", units[1].ID())

	tr, err := cfg.translator()
	require.NoError(t, err)
	require.IsType(t, &message.NativeTranslator{}, tr)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("NATS_URL", "nats://override:4222")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "mem", cfg.Transport.Kind)
	require.Equal(t, "nats://override:4222", cfg.Transport.URL)
	require.Equal(t, defaultQueueCapacity, *cfg.Dispatch.QueueCapacity)
	require.Equal(t, "json", cfg.Codec)
}

func TestLoadConfig_ExplicitZeroCapacityKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "dispatch:\n  queue_capacity: 0\n"))
	require.NoError(t, err)
	require.Equal(t, 0, *cfg.Dispatch.QueueCapacity)
}

func TestConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "node: ["))
	require.Error(t, err)

	cfg := &Config{Units: []UnitConfig{{Type: "teleport"}}}
	_, err = cfg.units()
	require.ErrorContains(t, err, "unknown type")

	cfg = &Config{Translator: TranslatorConfig{Kind: "xml"}}
	_, err = cfg.translator()
	require.Error(t, err)
}
