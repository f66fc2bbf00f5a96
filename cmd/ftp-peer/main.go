// =============================================================================
// 文件: cmd/ftp-peer/main.go
// 描述: 对等端入口 - 经信令协商数据通道，在可靠会话上收发文本与文件
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/config"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/metrics"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/session"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/signaling"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/transfer"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/transport"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	relayURL := flag.String("relay", "", "信令服务器地址 (覆盖配置)")
	roomID := flag.String("room", "", "房间 ID (覆盖配置)")
	sendFile := flag.String("send", "", "发送文件路径 (指定后作为发起方)")
	sendText := flag.String("text", "", "发送文本消息 (指定后作为发起方)")
	outDir := flag.String("out", ".", "接收文件保存目录")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ftp-peer %s (built %s, %s)\n", Version, BuildTime, runtime.Version())
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
	if *relayURL != "" {
		cfg.Signaling.URL = *relayURL
	}
	if *roomID != "" {
		cfg.Signaling.RoomID = *roomID
	}
	if cfg.Signaling.RoomID == "" {
		fmt.Fprintln(os.Stderr, "缺少房间 ID (使用 -room 或配置 signaling.room_id)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *sendFile, *sendText, *outDir); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "运行错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, sendFile, sendText, outDir string) error {
	initiator := sendFile != "" || sendText != ""

	// 连接信令服务器并加入房间
	sig, err := signaling.Dial(ctx, cfg.Signaling.URL)
	if err != nil {
		return err
	}
	defer sig.Close()

	if err := sig.Join(ctx, cfg.Signaling.RoomID); err != nil {
		return fmt.Errorf("加入房间失败: %w", err)
	}
	fmt.Printf("已加入房间 %s，等待对端...\n", cfg.Signaling.RoomID)

	// 协商数据通道
	connector := transport.NewPeerConnector(
		&transport.WebRTCConfig{STUNServers: cfg.WebRTC.STUNServers},
		sig, cfg.Signaling.RoomID,
	)

	var conn *transport.DataChannelConn
	if initiator {
		conn, err = connector.Dial(ctx)
	} else {
		conn, err = connector.Accept(ctx)
	}
	if err != nil {
		return fmt.Errorf("建立数据通道失败: %w", err)
	}
	defer conn.Close()
	fmt.Println("数据通道已打开")

	// 可靠会话与文件重组
	recv := transfer.NewReceiver()
	recv.OnText(func(text string) {
		fmt.Printf("收到文本: %s\n", text)
	})
	recv.OnFile(func(f transfer.ReceivedFile) {
		path := filepath.Join(outDir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "保存文件失败: %v\n", err)
			return
		}
		fmt.Printf("收到文件: %s (%d 字节) -> %s\n", f.Name, f.Size, path)
	})
	recv.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "接收错误: %v\n", err)
	})
	recv.OnProgress(func(received, total uint32) {
		fmt.Printf("\r接收进度: %d/%d 块", received, total)
		if received == total {
			fmt.Println()
		}
	})

	sess := session.New(conn, sessionConfig(cfg), &peerHandler{recv: recv})
	defer sess.Close()
	conn.SetOnMessage(sess.HandleIncoming)

	// 指标服务
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		metricsSrv.MustRegister(metrics.NewSessionCollector(sess.Snapshot))
		g.Go(func() error {
			if err := metricsSrv.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			metricsSrv.Stop()
			return nil
		})
	}

	g.Go(func() error {
		if sendText != "" {
			if err := sess.WaitUntilSent(ctx, protocol.TextPayload{Text: sendText}); err != nil {
				return fmt.Errorf("发送文本失败: %w", err)
			}
			fmt.Println("文本已发送")
		}

		if sendFile != "" {
			if err := doSendFile(ctx, sess, cfg.Transfer.ChunkSize, sendFile); err != nil {
				return err
			}
		}

		if !initiator {
			// 接收方驻留到被中断
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	err = g.Wait()
	printStats(sess.Snapshot())
	return err
}

// doSendFile 发送单个文件
func doSendFile(ctx context.Context, sess *session.Session, chunkSize int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	sender := transfer.NewSender(sess, chunkSize)
	sender.OnProgress(func(sent, total uint32) {
		fmt.Printf("\r发送进度: %d/%d 块", sent, total)
		if sent == total {
			fmt.Println()
		}
	})

	start := time.Now()
	if err := sender.SendFile(ctx, filepath.Base(path), mimeType, f, uint64(info.Size())); err != nil {
		return fmt.Errorf("发送文件失败: %w", err)
	}
	fmt.Printf("文件已发送: %s (%d 字节, 耗时 %v)\n", info.Name(), info.Size(), time.Since(start).Round(time.Millisecond))
	return nil
}

// peerHandler 会话事件处理器
type peerHandler struct {
	recv *transfer.Receiver
}

func (h *peerHandler) OnDeliver(p protocol.Payload) { h.recv.HandlePayload(p) }

func (h *peerHandler) OnStats(session.Stats) {}

func (h *peerHandler) OnSendFailed(seq uint32, p protocol.Payload, err error) {
	fmt.Fprintf(os.Stderr, "帧 %d 交付失败: %v\n", seq, err)
}

func sessionConfig(cfg *config.Config) *session.Config {
	return &session.Config{
		RetransmitTimeout: time.Duration(cfg.Session.TimeoutMs) * time.Millisecond,
		MaxRetries:        cfg.Session.MaxRetries,
		PollInterval:      time.Duration(cfg.Session.PollIntervalMs) * time.Millisecond,
		SendWaitTimeout:   time.Duration(cfg.Session.SendWaitTimeoutMs) * time.Millisecond,
		RTTHistorySize:    cfg.Session.RTTHistorySize,
	}
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

func printStats(s session.Stats) {
	fmt.Printf("会话统计: 发送 %d / 接收 %d / 确认 %d / 重传 %d / 重复 %d / 失败 %d\n",
		s.Sent, s.Received, s.Acks, s.Retransmits, s.Duplicates, s.Failed)
	if s.LastRTT > 0 {
		fmt.Printf("最近 RTT: %v (样本 %d)\n", s.LastRTT, len(s.RTTHistory))
	}
}
