package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()

	assert.Equal(t, "0.0.0.0", c.Server.Host)
	assert.Equal(t, 3033, c.Server.Port)
	assert.Equal(t, "yt-dlp", c.Paths.ResolverPath)
	assert.Equal(t, "ffmpeg", c.Paths.FFmpegPath)
	assert.Equal(t, 2, c.Downloads.Concurrency)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 8080
paths:
  download_path: /media/downloads
downloads:
  concurrency: 4
  rate_limit_kbps: 512
authentication:
  require_auth: true
  username: admin
`), 0644))

	c := &Config{}
	c.applyDefaults()
	require.NoError(t, c.Load(path))

	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "/media/downloads", c.Paths.DownloadPath)
	assert.Equal(t, 4, c.Downloads.Concurrency)
	assert.Equal(t, int64(512), c.Downloads.RateLimitKBps)
	assert.True(t, c.Authentication.RequireAuth)

	// untouched keys keep their defaults
	assert.Equal(t, "yt-dlp", c.Paths.ResolverPath)

	assert.Equal(t, path, c.Path())
	assert.Equal(t, filepath.Dir(path), c.Dir())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MEDIA_ROOT", "/srv/media")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("paths:\n  download_path: ${MEDIA_ROOT}/downloads\n"), 0644))

	c := &Config{}
	require.NoError(t, c.Load(path))

	assert.Equal(t, "/srv/media/downloads", c.Paths.DownloadPath)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()

	require.NoError(t, c.Load(filepath.Join(t.TempDir(), "absent.yml")))
	assert.Equal(t, 3033, c.Server.Port)
}
