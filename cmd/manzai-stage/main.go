package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/manzai-stage/internal/config"
	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/stage"
)

func main() {
	configPath := flag.String("config", "configs/manzai-stage.yaml", "配置文件路径")
	topic := flag.String("topic", "", "漫才话题（必填）")
	flag.Parse()

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "用法: manzai-stage -topic <话题> [-config <路径>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// 配置文件可选，不存在时用默认值
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	if err := logger.Init(logger.Config{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] manzai-stage 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	s, err := stage.New(cfg, stage.NopTarget{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建舞台失败: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Prepare(ctx, *topic); err != nil {
		fmt.Fprintf(os.Stderr, "准备演出失败: %v\n", err)
		os.Exit(1)
	}

	if !s.Start(ctx) {
		fmt.Fprintln(os.Stderr, "没有可播放的段")
		os.Exit(1)
	}

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "运行出错: %v\n", err)
		os.Exit(1)
	}

	logger.Info("[main] manzai-stage 已停止")
}
