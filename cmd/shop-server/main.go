// Command shop-server starts the LAN shop inventory server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/admin"
	"github.com/Lucius-40/lanshop/internal/config"
	"github.com/Lucius-40/lanshop/internal/limiter"
	"github.com/Lucius-40/lanshop/internal/repository/flatfile"
	"github.com/Lucius-40/lanshop/internal/server"
	"github.com/Lucius-40/lanshop/internal/service"
	"github.com/Lucius-40/lanshop/internal/session"
	"github.com/Lucius-40/lanshop/internal/watcher"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, loads the stores and runs the server until a
// termination signal arrives.
func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	adminAddr := flag.String("admin-addr", "", "admin HTTP address (overrides config)")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg := config.Default()
	if *cfgPath != "" {
		if err := cfg.LoadFile(*cfgPath); err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.ListenAddr),
		zap.String("dataDir", cfg.DataDir),
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores
	inv := flatfile.NewInventory(cfg.ProductsPath(), cfg.DescriptionsPath(), logger)
	if err := inv.Load(); err != nil {
		logger.Fatal("load inventory", zap.Error(err))
	}
	users := flatfile.NewUsers(cfg.UsersPath(), logger)
	if err := users.Load(); err != nil {
		logger.Fatal("load users", zap.Error(err))
	}
	orders := flatfile.NewOrders(cfg.OrdersPath(), logger)

	// Sessions and services
	sessions := session.NewRegistry(cfg.SessionTTL.Std(), logger)
	go sessions.RunSweeper(ctx, cfg.SweepInterval.Std())

	lim := limiter.NewMemory(cfg.LoginWindow.Std(), cfg.LoginMaxFails, cfg.LoginBlock.Std())
	auth := service.NewAuthService(users, sessions, lim, logger)

	// Server core
	srv := server.New(cfg, inv, orders, auth, sessions, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("start server", zap.Error(err))
	}

	// Product file watcher
	w := watcher.New(cfg.ProductsPath(), func() {
		if err := srv.RefreshInventoryFromFile(); err != nil {
			return
		}
		srv.BroadcastInventoryUpdate()
	}, logger)
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("file watcher stopped", zap.Error(err))
		}
	}()

	// Admin HTTP surface (optional)
	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr:    cfg.AdminAddr,
			Handler: admin.NewRouter(srv, logger),
		}
		go func() {
			logger.Info("admin http listening", zap.String("addr", cfg.AdminAddr))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin http", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Std())
		_ = adminSrv.Shutdown(shutdownCtx)
		cancel()
	}
	srv.Stop()

	logger.Info("shutdown complete")
}
