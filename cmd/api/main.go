package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/C4T-BuT-S4D/invitegate/internal/api"
	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/C4T-BuT-S4D/invitegate/internal/logging"
	"github.com/C4T-BuT-S4D/invitegate/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	if err := cfg.ValidateStorage(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}
	logrus.Debugf("config: %+v", cfg.Redacted())

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	defer initCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	api.NewService(cfg, store).Register(e)

	go func() {
		if err := e.Start(cfg.APIListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Failed to shut down api: %v", err)
	}
}

func setupConfig() {
	viper.SetDefault("api_listen", ":8080")
	config.SetupCommon()
}
