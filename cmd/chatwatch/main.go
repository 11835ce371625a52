/*
	Runs chatwatch. Mirrors a remote chat page, annotates it, and serves the
	annotated page and the control API. Defaults to listening on
	127.0.0.1:8750.

	Only run this on private machines. The control API has no
	authentication whatsoever.

Example:

		go run . --config chatwatch.yaml
	    go run . --source "https://example.com/chat" --listen 127.0.0.1:9000
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awfulava/chatwatch"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file")
	envFile    = flag.String("env", ".env", "dotenv file loaded before the config")
	listen     = flag.String("listen", "", "control API listen address, overrides the config")
	source     = flag.String("source", "", "chat page URL, overrides the config")
)

func main() {
	flag.Parse()

	if err := chatwatch.LoadDotEnv(*envFile); err != nil {
		log.Fatal(err)
	}
	cfg, err := chatwatch.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *source != "" {
		cfg.Source.URL = *source
	}
	chatwatch.InitLogging(cfg.Logging.Level, cfg.Logging.Sink)
	logger := chatwatch.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store chatwatch.Store = chatwatch.NewMemoryStore()
	if cfg.DBPath != "" {
		ps, err := chatwatch.OpenPebbleStore(cfg.DBPath)
		if err != nil {
			log.Fatal(err)
		}
		store = ps
	}
	persistence := chatwatch.NewPersistence(store)
	defer persistence.Close()

	hc, err := chatwatch.NewLimitedHTTPClient(
		cfg.Source.RateInterval.Duration(),
		cfg.Source.RateBurst,
		cfg.Source.Timeout.Duration(),
		cfg.Source.UserAgent,
	)
	if err != nil {
		log.Fatal(err)
	}

	var native chatwatch.Notifier
	switch {
	case cfg.Notify.Telegram.Token != "":
		tn, err := chatwatch.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, cfg.Notify.Telegram.Endpoint, hc)
		if err != nil {
			log.Fatal(err)
		}
		native = tn
	case cfg.Notify.WebhookURL != "":
		native = chatwatch.NewWebhookNotifier(cfg.Notify.WebhookURL, hc)
	}
	inPage := chatwatch.NewPageNotifier()
	center := chatwatch.NewNotificationCenter(native, inPage, cfg.Notify.QueueSize)
	go center.Run(ctx)

	adapter, err := chatwatch.NewHTMLAdapter(cfg.Page.MessageSelector, cfg.Page.AuthorParam)
	if err != nil {
		log.Fatal(err)
	}
	var defaults []chatwatch.Feature
	for _, name := range cfg.Features.Default {
		f, err := chatwatch.ParseFeature(name)
		if err != nil {
			log.Fatal(err)
		}
		defaults = append(defaults, f)
	}

	page := chatwatch.NewPage()
	dispatcher := chatwatch.NewDispatcher(chatwatch.DispatcherConfig{
		Host:            page,
		Adapter:         adapter,
		Observer:        cfg.ObserverConfig(),
		Store:           persistence,
		Alerter:         center,
		HistoryCapacity: cfg.Page.HistoryCapacity,
		DefaultFeatures: defaults,
	})
	go dispatcher.Run(ctx)
	dispatcher.Load()

	if cfg.Source.URL != "" {
		pc, err := chatwatch.NewPageClient(cfg.Source.URL, cfg.Page.ContainerSelectors, hc)
		if err != nil {
			log.Fatal(err)
		}
		poller := chatwatch.NewPoller(pc, page, adapter, cfg.Source.PollInterval.Duration(), cfg.Source.RetryDelay.Duration())
		go poller.Run(ctx)
	} else {
		logger.Warn("no_source_configured")
	}

	if cfg.Pins.ClearCron != "" {
		go chatwatch.RunPinSchedule(ctx, cfg.Pins.ClearCron, dispatcher)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           chatwatch.NewAPI(dispatcher, page, inPage).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Printf("Listening on http://%s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
