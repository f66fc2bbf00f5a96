// =============================================================================
// 文件: cmd/ftp-relay/main.go
// 描述: 信令中继服务器入口 - 集成 Prometheus 指标与健康检查
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/config"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/metrics"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/relay"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	listen := flag.String("listen", "", "监听地址 (覆盖配置)")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	cfg := loadConfig(*configPath)
	if *listen != "" {
		cfg.Relay.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relaySrv := relay.NewServer(cfg.Relay.Listen, cfg.Relay.Path, cfg.LogLevel)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		metricsSrv.MustRegister(metrics.NewRelayCollector(relaySrv))
		metricsSrv.SetHealthCheck(func() metrics.HealthStatus {
			return metrics.HealthStatus{
				Status:    "healthy",
				Timestamp: time.Now(),
				Uptime:    time.Since(startTime),
				Components: map[string]metrics.ComponentHealth{
					"relay": {Status: "healthy", Message: fmt.Sprintf("%d rooms", relaySrv.RoomCount())},
				},
			}
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := relaySrv.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		relaySrv.Stop()
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			metricsSrv.Stop()
			return nil
		})
	}

	printBanner(cfg)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "运行错误: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("已关闭")
}

func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printVersion() {
	fmt.Printf("ftp-relay %s (built %s, %s)\n", Version, BuildTime, runtime.Version())
}

func printBanner(cfg *config.Config) {
	fmt.Println("==========================================")
	fmt.Printf("  ftp-relay %s\n", Version)
	fmt.Printf("  信令中继: %s%s\n", cfg.Relay.Listen, cfg.Relay.Path)
	if cfg.Metrics.Enabled {
		fmt.Printf("  指标服务: %s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	fmt.Println("==========================================")
}
