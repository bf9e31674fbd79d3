package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/service/mirror"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	content := fmt.Sprintf(`
[database]
dsn = %q

[file]
storage_path = %q

[retention]
threshold_days = 30

[log]
level = "error"
`, filepath.Join(dir, "data", "linkdrop.db"), filepath.Join(dir, "uploads"))

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReclaimCommandOnEmptyStore(t *testing.T) {
	path := writeConfig(t)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"reclaim", "--config", path, "--days", "1"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "reclaimed 0 of 0 files (0 failed), freed 0 B")
}

func TestReclaimCommandRejectsNonPositiveDays(t *testing.T) {
	path := writeConfig(t)

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reclaim", "--config", path, "--days", "0"})

	assert.Error(t, root.Execute())
}

func TestReclaimCommandMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reclaim", "--config", "missing.toml"})

	assert.Error(t, root.Execute())
}

func TestNewServerHTTP2(t *testing.T) {
	srv, err := newServer(config.ServerConfig{Port: 8443, ReadTimeout: 5, EnableHTTPS: true, EnableHTTP2: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, ":8443", srv.Addr)
	assert.Contains(t, srv.TLSConfig.NextProtos, "h2")

	srv, err = newServer(config.ServerConfig{Port: 8443, EnableHTTPS: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.TLSNextProto)
	assert.Empty(t, srv.TLSNextProto)

	srv, err = newServer(config.ServerConfig{Port: 8080}, nil)
	require.NoError(t, err)
	assert.Nil(t, srv.TLSConfig)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "reclaim")
}

type unreachableProvider struct {
	checked bool
}

func (p *unreachableProvider) Upload(context.Context, string, io.Reader, string) error { return nil }
func (p *unreachableProvider) Delete(context.Context, string) error { return nil }
func (p *unreachableProvider) Exists(context.Context, string) (bool, error) { return false, nil }

func (p *unreachableProvider) TestConnection(context.Context) error {
	p.checked = true
	return errors.New("access denied")
}

func TestNewAppFailsWhenMirrorUnreachable(t *testing.T) {
	path := writeConfig(t)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	cfg.Mirror.Enabled = true
	cfg.Mirror.Provider = "aliyun"
	cfg.Mirror.Bucket = "linkdrop"

	provider := &unreachableProvider{}
	orig := newMirrorProvider
	newMirrorProvider = func(config.MirrorConfig) (mirror.Provider, error) { return provider, nil }
	t.Cleanup(func() { newMirrorProvider = orig })

	_, err = newApp(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, provider.checked)
	assert.Contains(t, err.Error(), "access denied")
}
