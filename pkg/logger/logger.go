package logger

import (
	"NAS_Gallery/config"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "gallery.log"

// InitLogger 根据配置初始化全局的 slog 日志记录器。
// 日志同时输出到标准输出和 <logger.path>/gallery.log (按大小轮转)。
// 返回的 io.Closer 用于在程序退出时关闭日志文件。
func InitLogger(cfg *config.Config) (io.Closer, error) {
	logLevel := new(slog.LevelVar)
	if err := setLogLevel(cfg.Logger.Level, logLevel); err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.Logger.Path != "" {
		if err := os.MkdirAll(cfg.Logger.Path, 0755); err != nil {
			return nil, fmt.Errorf("无法创建日志目录: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Logger.Path, logFileName),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // 天
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	slog.SetDefault(slog.New(newHandler(out, cfg.Logger.Format, logLevel)))
	return closer, nil
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	handlerOpts := &slog.HandlerOptions{
		Level: level,
		// AddSource: true, // 如果需要输出源码位置（文件名和行号），取消此行注释
	}
	if format == "json" {
		return slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.NewTextHandler(w, handlerOpts)
}

// setLogLevel 将字符串形式的日志级别转换为 slog.Level 类型
func setLogLevel(levelStr string, levelVar *slog.LevelVar) error {
	switch levelStr {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return errors.New("无效的日志级别: " + levelStr)
	}
	return nil
}

// Discard 返回一个丢弃所有日志的 logger，主要用于测试，避免不必要的日志输出。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
