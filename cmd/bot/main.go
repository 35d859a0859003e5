package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/C4T-BuT-S4D/invitegate/internal/controller"
	"github.com/C4T-BuT-S4D/invitegate/internal/logging"
	"github.com/C4T-BuT-S4D/invitegate/internal/storage"
	"github.com/C4T-BuT-S4D/invitegate/internal/throttle"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
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

	globalState, err := store.GetOrCreateGlobalState(initCtx)
	if err != nil {
		logrus.Fatalf("Failed to get or create global state: %v", err)
	}

	var limiter throttle.Limiter = throttle.Nop{}
	if cfg.RedisURL != "" {
		client, err := throttle.NewRedisClient(initCtx, cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		limiter = throttle.NewRedisLimiter(client, cfg.ThrottleLimit, cfg.ThrottleWindow)
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token: cfg.TelegramToken,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			LastUpdateID:   globalState.LastUpdateID,
			AllowedUpdates: []string{"message", "callback_query"},
		},
		OnError: onError,
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	if cfg.BotUsername == "" {
		cfg.BotUsername = bot.Me.Username
	}
	logrus.Infof("Running as @%s, %d invites unlock the channel", cfg.BotUsername, cfg.RequiredInvites)

	ctrl := controller.New(cfg, store, bot, limiter)
	ctrl.Register(bot)

	if err := bot.SetCommands(ctrl.Commands()); err != nil {
		logrus.Warnf("Failed to set bot commands: %v", err)
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start()
	}()

	<-ctx.Done()

	bot.Stop()

	logrus.Info("waiting for services to finish")
	wg.Wait()
}

func onError(err error, c telebot.Context) {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if c != nil {
		entry = entry.WithField("update_id", c.Update().ID)
		if c.Sender() != nil {
			entry = entry.WithField("sender_id", c.Sender().ID)
		}
	}
	entry.Errorf("failed to handle update: %v", err)
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "10s")
	config.SetupCommon()
}
