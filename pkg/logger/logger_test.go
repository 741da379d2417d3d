package logger

import (
	"NAS_Gallery/config"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default()
	cfg.Logger.Path = filepath.Join(t.TempDir(), "logs")
	cfg.Logger.Format = "json"
	cfg.Logger.Level = "warn"

	closer, err := InitLogger(cfg)
	require.NoError(t, err)

	slog.Info("不应写入")
	slog.Warn("扫描失败", "path", "/x/a.jpg")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(cfg.Logger.Path, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"扫描失败"`)
	assert.Contains(t, string(data), `"path":"/x/a.jpg"`)
	assert.NotContains(t, string(data), "不应写入")
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Path = ""
	cfg.Logger.Level = "verbose"

	_, err := InitLogger(cfg)
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		var lv slog.LevelVar
		require.NoError(t, setLogLevel(in, &lv), in)
		assert.Equal(t, want, lv.Level(), in)
	}
}
