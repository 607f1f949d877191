package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fieldscope/vistoria/app"
	"github.com/fieldscope/vistoria/checklist"
	"github.com/fieldscope/vistoria/config"
	"github.com/fieldscope/vistoria/database"
	"github.com/fieldscope/vistoria/log"
	"github.com/fieldscope/vistoria/notify"
	"github.com/fieldscope/vistoria/report"
	"github.com/fieldscope/vistoria/routes"
	"github.com/fieldscope/vistoria/storage"
	"github.com/go-chi/jwtauth/v5"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	var store storage.ObjectStore
	if cfg.GCSBucket != "" {
		store, err = storage.NewGCSStore(context.Background(), cfg.GCSBucket)
	} else {
		store, err = storage.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
	}
	if err != nil {
		log.Fatal("main.storage:", err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	}

	app := app.App{
		DB:        db,
		Config:    cfg,
		TokenAuth: jwtauth.New("HS256", []byte(cfg.TokenSecret), nil),
		Checklist: checklist.New(db, store, notifier, cfg.ProtocolPrefix, cfg.Debug),
		Reports:   report.New(store, cfg.Brand),
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
