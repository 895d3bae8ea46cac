package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
server: irc.libera.chat:6697
tls: true
nick: norbert
user: norbert
channels:
  - "#norbert"
  - "#bots"
quitMsg: bye
commandPrefix: "."
modules:
  dir: /opt/norbert/Modules
dispatch:
  workers: 16
  handlerTimeout: 30s
http:
  timeout: 5s
  ratePerSecond: 2
  burst: 4
configSource:
  type: etcd
  prefix: /norbert/modules
  watch: true
  etcd:
    endpoints: ["etcd-0:2379"]
metrics:
  listen: ":9102"
loggers:
  - name: norbert
    filepath: logs/norbert.log
    level: debug
    console: true
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "irc.libera.chat:6697", cfg.Server)
	assert.True(t, cfg.TLS)
	assert.Equal(t, "norbert", cfg.RealName)
	assert.Equal(t, Channels{"#norbert", "#bots"}, cfg.Channels)
	assert.Equal(t, ".", cfg.CommandPrefix)
	assert.Equal(t, "/opt/norbert/Modules", cfg.Modules.Dir)
	assert.Equal(t, 16, cfg.Dispatch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.HandlerTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2.0, cfg.HTTP.RatePerSecond)
	assert.Equal(t, 4, cfg.HTTP.Burst)
	assert.Equal(t, SourceEtcd, cfg.ConfigSource.Type)
	assert.True(t, cfg.ConfigSource.Watch)
	assert.Equal(t, []string{"etcd-0:2379"}, cfg.ConfigSource.Etcd.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.ConfigSource.Etcd.DialTimeout)
	assert.Equal(t, ":9102", cfg.Metrics.Listen)
	require.Len(t, cfg.Loggers, 1)
	assert.Equal(t, "norbert", cfg.Loggers[0].Name)
	assert.True(t, cfg.Loggers[0].Console)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server: s\nnick: n\nuser: u\nchannels: \"#a  #b\"\nquitMsg: q\n"))
	require.NoError(t, err)

	assert.Equal(t, Channels{"#a", "#b"}, cfg.Channels)
	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, "Modules", cfg.Modules.Dir)
	assert.Equal(t, 256, cfg.Dispatch.Workers)
	assert.Equal(t, 60*time.Second, cfg.Dispatch.HandlerTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, SourceFile, cfg.ConfigSource.Type)
	assert.Equal(t, "UTC", cfg.Clock.Timezone)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestValidateRequiredFieldsInOrder(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		field   string
		wantErr error
	}{
		{name: "everything missing", yaml: "tls: false\n", field: "server", wantErr: ErrServerInvalid},
		{name: "blank server", yaml: "server: '  '\nnick: n\nuser: u\nchannels: '#a'\nquitMsg: q\n", field: "server", wantErr: ErrServerInvalid},
		{name: "missing nick", yaml: "server: s\nuser: u\nchannels: '#a'\nquitMsg: q\n", field: "nick", wantErr: ErrNickInvalid},
		{name: "missing user", yaml: "server: s\nnick: n\nchannels: '#a'\nquitMsg: q\n", field: "user", wantErr: ErrUserInvalid},
		{name: "blank channels", yaml: "server: s\nnick: n\nuser: u\nchannels: '   '\nquitMsg: q\n", field: "channels", wantErr: ErrChannelsInvalid},
		{name: "empty channel list", yaml: "server: s\nnick: n\nuser: u\nchannels: []\nquitMsg: q\n", field: "channels", wantErr: ErrChannelsInvalid},
		{name: "missing quit message", yaml: "server: s\nnick: n\nuser: u\nchannels: '#a'\n", field: "quitMsg", wantErr: ErrQuitMsgInvalid},
		{name: "unknown source", yaml: "server: s\nnick: n\nuser: u\nchannels: '#a'\nquitMsg: q\nconfigSource:\n  type: consul\n", field: "configSource.type", wantErr: ErrConfigSourceInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidationErrorsAreDistinct(t *testing.T) {
	sentinels := []error{ErrServerInvalid, ErrNickInvalid, ErrUserInvalid, ErrChannelsInvalid, ErrQuitMsgInvalid}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
	assert.EqualError(t, &ValidationError{Field: "server", Err: ErrServerInvalid}, "config: server invalid")
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated\n"))
	require.Error(t, err)

	_, err = Parse([]byte("server: s\nnick: n\nuser: u\nchannels: {a: b}\nquitMsg: q\n"))
	require.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norbert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "norbert", cfg.Nick)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
