package xconf

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatch_ReloadOnChange(t *testing.T) {
	path := writeTempConfig(t, "policy.yaml", "score:\n  max_score: 100\n")
	cfg, err := New(path)
	require.NoError(t, err)

	var reloads atomic.Int32
	w, err := Watch(cfg, func(_ Config, err error) {
		if err == nil {
			reloads.Add(1)
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	w.Start()
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte("score:\n  max_score: 42\n"), 0o600))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond, "expected at least one reload")

	assert.Equal(t, int64(42), cfg.Client().Int64("score.max_score"))
}

func TestWatch_Validation(t *testing.T) {
	t.Run("bytes config", func(t *testing.T) {
		cfg, err := NewFromBytes([]byte("{}"), FormatJSON)
		require.NoError(t, err)
		_, err = Watch(cfg, func(Config, error) {})
		assert.ErrorIs(t, err, ErrNotReloadable)
	})

	t.Run("nil callback", func(t *testing.T) {
		path := writeTempConfig(t, "policy.yaml", "a: 1\n")
		cfg, err := New(path)
		require.NoError(t, err)
		_, err = Watch(cfg, nil)
		assert.Error(t, err)
	})
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	path := writeTempConfig(t, "policy.yaml", "a: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	w, err := Watch(cfg, func(Config, error) {})
	require.NoError(t, err)
	w.Start()

	require.NoError(t, w.Stop())
	// 第二次 Stop 不应 panic；底层 watcher 已关闭
	_ = w.Stop()
}

func TestWatch_StopWithoutStart(t *testing.T) {
	path := writeTempConfig(t, "policy.yaml", "a: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	w, err := Watch(cfg, func(Config, error) {})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}
