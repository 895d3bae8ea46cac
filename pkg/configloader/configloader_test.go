package configloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/etcd"
)

type tumblrConfig struct {
	ApiKey string
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "Tumblr/Config.json", want: "Tumblr/Config.json"},
		{in: " Tumblr//Config.json ", want: "Tumblr/Config.json"},
		{in: `Tumblr\Config.json`, want: "Tumblr/Config.json"},
		{in: "./Tumblr/Config.json", want: "Tumblr/Config.json"},
		{in: "", wantErr: ErrEmptyPath},
		{in: ".", wantErr: ErrEmptyPath},
		{in: "/etc/passwd", wantErr: ErrEscapesRoot},
		{in: "../secret.json", wantErr: ErrEscapesRoot},
		{in: "Tumblr/../../x.json", wantErr: ErrEscapesRoot},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cleanPath(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileLoaderJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "Tumblr/Config.json", []byte(`{"ApiKey":"k1","Unused":true}`), 0o644))

	l := NewFileLoaderFs(fs)
	cfg, err := capability.LoadConfig[tumblrConfig](l, "Tumblr/Config.json")
	require.NoError(t, err)
	assert.Equal(t, "k1", cfg.ApiKey)
}

func TestFileLoaderYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "Announce/Config.yaml", []byte("timezone: Europe/Berlin\n"), 0o644))

	var cfg struct {
		Timezone string `yaml:"timezone"`
	}
	require.NoError(t, NewFileLoaderFs(fs).Load("Announce/Config.yaml", &cfg))
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
}

func TestFileLoaderErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "Broken/Config.json", []byte(`{"ApiKey":`), 0o644))
	l := NewFileLoaderFs(fs)

	for _, rel := range []string{"Missing/Config.json", "Broken/Config.json", "../escape.json"} {
		var cfg tumblrConfig
		err := l.Load(rel, &cfg)
		var loadErr *capability.ConfigLoadError
		require.ErrorAs(t, err, &loadErr, rel)
		assert.Equal(t, rel, loadErr.Path)
		assert.Contains(t, err.Error(), rel)
	}
}

func TestFileLoaderOnDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Tumblr"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Tumblr", "Config.json"), []byte(`{"ApiKey":"disk"}`), 0o644))

	cfg, err := capability.LoadConfig[tumblrConfig](NewFileLoader(root), "Tumblr/Config.json")
	require.NoError(t, err)
	assert.Equal(t, "disk", cfg.ApiKey)
}

type fakeKV map[string]string

func (f fakeKV) Get(_ context.Context, key string) (*etcd.KeyValue, error) {
	v, ok := f[key]
	if !ok {
		return nil, etcd.ErrKeyNotFound
	}
	return &etcd.KeyValue{Key: key, Value: []byte(v)}, nil
}

func TestEtcdLoader(t *testing.T) {
	kv := fakeKV{"/bots/norbert/Tumblr/Config.json": `{"ApiKey":"from-etcd"}`}
	l := NewEtcdLoaderKV(kv, "/bots/norbert", 0)
	assert.Equal(t, "/bots/norbert/", l.Prefix())

	cfg, err := capability.LoadConfig[tumblrConfig](l, "Tumblr/Config.json")
	require.NoError(t, err)
	assert.Equal(t, "from-etcd", cfg.ApiKey)

	_, err = capability.LoadConfig[tumblrConfig](l, "Other/Config.json")
	var loadErr *capability.ConfigLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, etcd.ErrKeyNotFound)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/norbert/modules/", NormalizePrefix(""))
	assert.Equal(t, "/x/", NormalizePrefix("/x"))
	assert.Equal(t, "/x/", NormalizePrefix("/x/"))
}
