package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/CharmsDev/charms-go/internal/config"
	badgerdb "github.com/CharmsDev/charms-go/internal/infrastructure/provenance/badger"
	"github.com/CharmsDev/charms-go/internal/interface/web"
	"github.com/CharmsDev/charms-go/pkg/charms/provenance"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var store provenance.Store
	switch cfg.DbType {
	case "badger":
		store, err = badgerdb.NewSpellRepository(cfg.DbDir, nil)
		if err != nil {
			log.WithError(err).Fatal("failed to open spell store")
		}
	default:
		store = provenance.NewInMemoryStore()
	}

	svc := web.NewService(fmt.Sprintf(":%d", cfg.Port), store)
	svc.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Stop(ctx)
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("failed to close spell store")
	}
	log.Info("bye")
}
