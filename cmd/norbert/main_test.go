package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/etcd"
	"github.com/lk2023060901/norbert/pkg/host"
	"github.com/lk2023060901/norbert/pkg/module"
)

func TestRootCommandHasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	for _, sub := range []string{"run", "modules", "config", "version"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestConfigFlag(t *testing.T) {
	configFile = ""
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config=/etc/norbert.yaml", "version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/etc/norbert.yaml", configFile)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "1.2.3"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "norbert 1.2.3\n", buf.String())
}

type nopModule struct{}

func (nopModule) Activate(context.Context, capability.Set) error { return nil }
func (nopModule) OnMessage(context.Context, chat.Message)        {}
func (nopModule) Deactivate(context.Context) error               { return nil }

func TestListModules(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/modules/tumblr/module.yaml", []byte("provides: [echo]\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/modules/weather/module.yaml", []byte("provides: [weather]\n"), 0o644))

	catalog := module.NewCatalog()
	require.NoError(t, catalog.Register("echo", func() module.Module { return nopModule{} }))

	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	require.NoError(t, listModules(cmd, host.New(host.Options{Dir: "/modules", Fs: fs}), catalog))

	out := buf.String()
	assert.Contains(t, out, "/modules/tumblr/module.yaml")
	assert.Regexp(t, `/modules/tumblr/module\.yaml\s+echo\s+ok`, out)
	assert.Regexp(t, `/modules/weather/module\.yaml\s+weather\s+.*unknown`, out)
	assert.Contains(t, out, "2 unit(s); available implementations: echo")
}

type fakePutter struct {
	key, value string
	err        error
}

func (f *fakePutter) Put(_ context.Context, key, value string) error {
	f.key, f.value = key, value
	return f.err
}

func TestPushConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "Config.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"ApiKey":"k"}`), 0o644))
	bad := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"ApiKey":`), 0o644))

	p := &fakePutter{}
	key, err := pushConfig(context.Background(), p, "/bots/norbert", "Tumblr/Config.json", good)
	require.NoError(t, err)
	assert.Equal(t, "/bots/norbert/Tumblr/Config.json", key)
	assert.Equal(t, key, p.key)
	assert.JSONEq(t, `{"ApiKey":"k"}`, p.value)

	_, err = pushConfig(context.Background(), &fakePutter{}, "", "Tumblr/Config.json", bad)
	var loadErr *capability.ConfigLoadError
	assert.ErrorAs(t, err, &loadErr)

	_, err = pushConfig(context.Background(), &fakePutter{}, "", "../escape.json", good)
	assert.Error(t, err)

	_, err = pushConfig(context.Background(), &fakePutter{err: errors.New("unavailable")}, "", "Tumblr/Config.json", good)
	assert.ErrorContains(t, err, "unavailable")
}

type fakeLister []*etcd.KeyValue

func (f fakeLister) List(context.Context, string) ([]*etcd.KeyValue, error) {
	return f, nil
}

func TestListConfigs(t *testing.T) {
	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	require.NoError(t, listConfigs(cmd, fakeLister{
		{Key: "/norbert/modules/Announce/Config.json", Value: []byte(`{}`), Version: 1},
		{Key: "/norbert/modules/Tumblr/Config.json", Value: []byte(`{"ApiKey":"k"}`), Version: 3},
	}, "/norbert/modules/"))

	out := buf.String()
	assert.Regexp(t, `Announce/Config\.json\s+1\s+2`, out)
	assert.Regexp(t, `Tumblr/Config\.json\s+3\s+14`, out)
	assert.Contains(t, out, "2 config(s) under /norbert/modules/")
}
