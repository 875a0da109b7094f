package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const full = `
listen: 127.0.0.1:9000
admin: ""
descriptor_sets: [greeter.pb, echo.pb]
call_timeout: 30s
dial_timeout: 2s
max_message_size: 1024
aliases:
  greeter: localhost:50051
etcd:
  endpoints: [127.0.0.1:2379]
  dial_timeout: 1s
log:
  level: debug
  development: true
tracing:
  enabled: true
  output: spans.json
  sample_ratio: 0.5
  services: [mock.]
  exclude_methods: [/mock.Greeter/SayHelloBidiStream]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Listen:         "127.0.0.1:9000",
		Admin:          "",
		DescriptorSets: []string{"greeter.pb", "echo.pb"},
		CallTimeout:    30 * time.Second,
		DialTimeout:    2 * time.Second,
		MaxMessageSize: 1024,
		Aliases:        map[string]string{"greeter": "localhost:50051"},
		Etcd:           Etcd{Endpoints: []string{"127.0.0.1:2379"}, DialTimeout: time.Second},
		Log:            Log{Level: "debug", Development: true},
		Tracing: Tracing{
			Enabled:        true,
			Output:         "spans.json",
			SampleRatio:    0.5,
			Services:       []string{"mock."},
			ExcludeMethods: []string{"/mock.Greeter/SayHelloBidiStream"},
		},
	}, cfg)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Parse([]byte("listen: :8000\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, DefaultAdmin, cfg.Admin)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "listne: :8000\n",
		"bad listen":       "listen: nowhere\n",
		"bad admin":        "admin: nowhere\n",
		"negative timeout": "call_timeout: -1s\n",
		"zero dial":        "dial_timeout: 0s\n",
		"zero size":        "max_message_size: 0\n",
		"empty alias":      "aliases:\n  greeter: \"\"\n",
		"bad level":        "log:\n  level: loud\n",
		"bad sample ratio": "tracing:\n  sample_ratio: 2\n",
		"bad duration":     "call_timeout: soon\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grpcbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"

	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}
