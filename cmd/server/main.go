package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jengzang/solarscan-backend-go/internal/app"
	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path (YAML)")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	logging.SetDefault(logger)

	// 初始化数据库与流水线
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", logging.Err(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动服务器
	if err := a.Serve(ctx); err != nil {
		logger.Error("server stopped", logging.Err(err))
	}
}
