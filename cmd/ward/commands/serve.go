package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.wardproxy.dev/ward/internal/ban"
	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/filter"
	"go.wardproxy.dev/ward/internal/gateway"
	"go.wardproxy.dev/ward/internal/servermanager"
	_ "go.wardproxy.dev/ward/internal/servermanager/crafty"
	_ "go.wardproxy.dev/ward/internal/servermanager/local"
	_ "go.wardproxy.dev/ward/internal/servermanager/pterodactyl"
	"go.wardproxy.dev/ward/internal/supervisor"
	"go.wardproxy.dev/ward/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() (err error) {
	var cfg config.Config
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("ward: load config: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("ward: parse config: %w", err)
	}

	if err := initLogger(cfg.Debug); err != nil {
		return fmt.Errorf("ward: init logger: %w", err)
	}

	bans, err := openBanStore(cfg.BanStorePath)
	if err != nil {
		return fmt.Errorf("ward: open ban store: %w", err)
	}
	if closer, ok := bans.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	chain := filter.NewChain(
		filter.NewRateLimiter(filter.RateLimitConfig{
			RatePerSecond: cfg.RateLimit.RatePerSecond,
			Burst:         cfg.RateLimit.Burst,
			MaxTrackedIPs: cfg.RateLimit.MaxTrackedIPs,
		}),
		filter.NewBanFilter(bans),
	)

	recorder := telemetry.NoOp{}
	sup := supervisor.New(recorder)
	gw := gateway.New(bans, chain, sup, recorder)

	provider, err := config.NewFileProvider(viper.ConfigFileUsed())
	if err != nil {
		return fmt.Errorf("ward: watch config file: %w", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Watch(ctx, provider)
	if err := primeServerManagers(cfg, sup); err != nil {
		return err
	}
	sup.Start(ctx)
	defer sup.Stop()

	ln, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("ward: listen on %q: %w", cfg.Bind, err)
	}
	defer ln.Close()
	zap.L().Info("ward: listening", zap.String("addr", cfg.Bind))

	go acceptLoop(ctx, ln, gw)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer func() { signal.Stop(sig); close(sig) }()

	s, ok := <-sig
	if ok {
		zap.L().Info("ward: received signal, shutting down", zap.Stringer("signal", s))
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, gw *gateway.Gateway) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				zap.L().Warn("ward: accept failed", zap.Error(err))
				continue
			}
		}
		go gw.HandleConnection(ctx, nc)
	}
}

// primeServerManagers constructs and registers each configured backend's
// server manager, so the supervisor's idle sweep and the gateway's
// opportunistic-start path can reach it before the first connection.
func primeServerManagers(cfg config.Config, sup *supervisor.Supervisor) error {
	for _, b := range cfg.Backends {
		if b.ServerManager == nil || b.ServerManager.Kind == config.ServerManagerNone {
			continue
		}
		mgr, err := servermanager.New(servermanager.Kind(b.ServerManager.Kind), servermanager.Options{
			StartCommand: b.ServerManager.StartCommand,
			StopCommand:  b.ServerManager.StopCommand,
			WorkDir:      b.ServerManager.WorkDir,
			PanelURL:     b.ServerManager.PanelURL,
			APIKey:       b.ServerManager.APIKey,
			ServerID:     b.ServerManager.ServerID,
		})
		if err != nil {
			return fmt.Errorf("ward: build server manager for %q: %w", b.ConfigID, err)
		}
		sup.RegisterServerManager(b.ConfigID, mgr, b.ServerManager.AutoShutdownAfter)
	}
	return nil
}

func openBanStore(path string) (ban.Store, error) {
	if path == "" {
		return ban.NewMemoryStore(), nil
	}
	return ban.NewFileStore(path)
}

func initLogger(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}
