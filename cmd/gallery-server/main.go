// 文件: cmd/gallery-server/main.go
package main

import (
	"NAS_Gallery/config"
	"NAS_Gallery/internal/api"
	"NAS_Gallery/internal/task"
	"NAS_Gallery/pkg/database/driver"
	"NAS_Gallery/pkg/logger"
	"NAS_Gallery/pkg/scanner"
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

func main() {
	configDir := flag.String("config", ".", "config.yaml 所在目录")
	flag.Parse()

	// --- 1. 初始化 ---
	if err := config.LoadConfig(*configDir); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	logCloser, err := logger.InitLogger(config.Get())
	if err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	defer logCloser.Close()
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. 连接数据库 ---
	db, err := driver.Open(ctx, config.Get().Database)
	if err != nil {
		slog.Error("FATAL: 无法打开数据库", "driver", config.Get().Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close(context.Background())
	slog.Info("数据库连接成功并已验证索引", "driver", config.Get().Database.Driver)

	// --- 3. 创建核心服务实例 ---
	orchestrator, err := scanner.NewOrchestrator(config.Get().Scanner, db)
	if err != nil {
		slog.Error("FATAL: 无法创建扫描协调器", "error", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	taskManager := task.NewManager(orchestrator, config.Get().Scanner.RootDir)
	defer taskManager.Shutdown()

	// --- 4. 设置并启动HTTP服务器 ---
	handlers := api.NewAPIHandlers(taskManager, db, orchestrator.Tags(), filepath.Join(*configDir, "config.yaml"))
	router := api.RegisterRoutes(handlers, config.Get().Server.AllowedOrigins)

	server := &http.Server{
		Addr:         config.Get().Server.Port,
		Handler:      router,
		ReadTimeout:  config.Get().Server.Timeout,
		WriteTimeout: config.Get().Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("收到退出信号，正在关闭HTTP服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("关闭HTTP服务器失败", "error", err)
		}
	}()

	slog.Info("HTTP服务器正在启动...", "地址", config.Get().Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("无法启动HTTP服务器", "error", err)
		os.Exit(1)
	}
}
