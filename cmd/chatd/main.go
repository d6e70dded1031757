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

	"github.com/ledzpl/linechat/internal/chat"
	"github.com/ledzpl/linechat/internal/config"
	"github.com/ledzpl/linechat/internal/shell"
	"github.com/ledzpl/linechat/pkg/wsgateway"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	server := chat.NewServer(
		chat.WithLogger(logger),
		chat.WithWriteTimeout(cfg.WriteTimeout),
	)

	console := shell.New(server, os.Stdin, os.Stdout)
	watched := make(chan struct{})
	sub := server.Subscribe()
	go func() {
		defer close(watched)
		console.Watch(sub)
	}()

	if err := server.Start(cfg.Address, cfg.Port); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}

	if cfg.WSAddr != "" {
		gateway, err := wsgateway.Listen(cfg.WSAddr,
			wsgateway.WithLogger(logger),
			wsgateway.WithCheckOrigin(func(*http.Request) bool { return true }),
		)
		if err != nil {
			server.Stop()
			logger.Fatalf("failed to start websocket gateway: %v", err)
		}
		if err := server.Attach(gateway); err != nil {
			_ = gateway.Close()
			server.Stop()
			logger.Fatalf("failed to attach websocket gateway: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("console stopped with error: %v", err)
	}

	server.Stop()
	<-watched
}
