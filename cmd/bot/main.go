package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"nuclight.org/daguerre-tg-bot/app/services"
	"nuclight.org/daguerre-tg-bot/app/telegram"
	"nuclight.org/daguerre-tg-bot/app/vault"
	"nuclight.org/daguerre-tg-bot/pkg/logger"
)

var opts struct {
	BotToken       string  `long:"bot-token" env:"BOT_TOKEN" required:"true" description:"telegram bot api token"`
	SavePath       string  `long:"save-path" env:"SAVE_PATH" default:"./received_images" description:"directory where received images are stored"`
	AllowedUserIDs []int64 `long:"allowed-user-id" env:"ALLOWED_USER_IDS" env-delim:"," description:"user ids allowed to send images, empty allows everyone"`
	WorkersNum     int     `long:"telegram-workers-num" env:"TELEGRAM_WORKERS_NUM" default:"5" description:"number of workers for telegram bot"`
	SentryDSN      string  `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn for error reporting, empty disables it"`
}

var Revision = "dev"

func main() {
	// .env is optional, real environment always wins.
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Info("starting bot", "revision", Revision, "save_path", opts.SavePath)

	if len(opts.AllowedUserIDs) > 0 {
		log.Info("access restricted", "allowed_user_ids", opts.AllowedUserIDs)
	} else {
		log.Warn("no allow-list configured, bot is open to all users")
	}

	if opts.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:     opts.SentryDSN,
			Release: Revision,
		})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	files, err := vault.New(opts.SavePath)
	if err != nil {
		log.Error("creating file vault", "error", err)
		os.Exit(1)
	}

	bot := &telegram.Client{
		Log:        log,
		APIToken:   opts.BotToken,
		WorkersNum: opts.WorkersNum,
	}

	bot.Handler = &services.KeeperSrv{
		Log:            log,
		AllowedUserIDs: opts.AllowedUserIDs,
		Files:          files,
		Downloader:     bot,
	}

	err = bot.Start(ctx)
	if err != nil {
		log.Error("starting bot", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("stopping bot")

	bot.Wait()

	if opts.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}

	os.Exit(0)
}
