package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"trustify/internal/config"
	"trustify/internal/journal"
	"trustify/internal/log"
	"trustify/internal/server"
	"trustify/internal/token"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.L(ctx).Fatalf("config error: %v", err)
	}
	log.InitConfig(cfg.Log)

	client, err := token.NewEthClient(ctx, token.EthClientConfig{
		RPCURL:              cfg.Chain.RPCURL,
		PrivateKeyHex:       cfg.Chain.PrivateKey,
		ContractAddress:     cfg.Chain.ContractAddress,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
	})
	if err != nil {
		log.L(ctx).Fatalf("contract client error: %v", err)
	}
	defer client.Close()

	var store journal.Store
	switch {
	case cfg.Journal.PostgresDSN != "":
		pg, err := journal.NewPostgresStore(ctx, cfg.Journal.PostgresDSN)
		if err != nil {
			log.L(ctx).Fatalf("journal store error: %v", err)
		}
		defer pg.Close()
		store = pg
	case cfg.Journal.Path != "":
		fs, err := journal.NewFileStore(cfg.Journal.Path)
		if err != nil {
			log.L(ctx).Fatalf("journal store error: %v", err)
		}
		store = fs
	}

	apiServer := server.NewServer(cfg, client, store)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.L(ctx).Fatalf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.L(ctx).Infof("Received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.L(ctx).Errorf("shutdown: %v", err)
	}
}
