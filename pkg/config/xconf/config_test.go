package xconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlSample = `
quota:
  key_prefix: "quota:"
  services:
    email_send:
      daily_limit: 50
      weekly_limit: 200
score:
  max_score: 100
`

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_YAML(t *testing.T) {
	path := writeTempConfig(t, "policy.yaml", yamlSample)

	cfg, err := New(path)
	require.NoError(t, err)

	assert.Equal(t, FormatYAML, cfg.Format())
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, int64(50), cfg.Client().Int64("quota.services.email_send.daily_limit"))
}

func TestNew_JSON(t *testing.T) {
	path := writeTempConfig(t, "policy.json", `{"score":{"max_score":100}}`)

	cfg, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, cfg.Format())
	assert.Equal(t, int64(100), cfg.Client().Int64("score.max_score"))
}

func TestNew_Errors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := New("/tmp/policy.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeTempConfig(t, "bad.yaml", "quota: [unclosed")
		_, err := New(path)
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte(yamlSample), FormatYAML)
	require.NoError(t, err)

	var target struct {
		MaxScore int `koanf:"max_score"`
	}
	require.NoError(t, cfg.Unmarshal("score", &target))
	assert.Equal(t, 100, target.MaxScore)

	t.Run("empty data", func(t *testing.T) {
		cfg, err := NewFromBytes(nil, FormatYAML)
		require.NoError(t, err)
		require.NoError(t, cfg.Unmarshal("score", &target))
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := NewFromBytes(nil, Format("toml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("not reloadable", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte(yamlSample), FormatYAML)
		require.NoError(t, err)
		assert.ErrorIs(t, cfg.Reload(), ErrNotReloadable)
	})
}

func TestReload(t *testing.T) {
	path := writeTempConfig(t, "policy.yaml", "score:\n  max_score: 100\n")
	cfg, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("score:\n  max_score: 60\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, int64(60), cfg.Client().Int64("score.max_score"))

	t.Run("parse failure keeps old config", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("score: [broken"), 0o600))
		assert.Error(t, cfg.Reload())
		assert.Equal(t, int64(60), cfg.Client().Int64("score.max_score"))
	})
}

func TestUnmarshal_CustomTag(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{"score":{"max_score":80}}`), FormatJSON, WithTag("json"))
	require.NoError(t, err)

	var target struct {
		MaxScore int `json:"max_score"`
	}
	require.NoError(t, cfg.Unmarshal("score", &target))
	assert.Equal(t, 80, target.MaxScore)
}
