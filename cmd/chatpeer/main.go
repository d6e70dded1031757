package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledzpl/linechat/internal/peer"
	"github.com/ledzpl/linechat/internal/roster"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Chat server address (host:port)")
	rosterPath := flag.String("roster", "", "Optional JSON roster of known servers")
	name := flag.String("server", "", "PC name to look up in the roster instead of -addr")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	target, err := resolveTarget(*addr, *rosterPath, *name)
	if err != nil {
		logger.Fatalf("failed to resolve server: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := peer.Dial(dialCtx, target)
	dialCancel()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer client.Close()
	logger.Printf("connected to %s", target)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := client.Send(scanner.Text()); err != nil && !errors.Is(err, peer.ErrEmptyMessage) {
				logger.Printf("%v", err)
				cancel()
				return
			}
		}
		cancel()
	}()

	err = client.Listen(ctx, func(line string) {
		fmt.Println(line)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("connection lost: %v", err)
	}
}

func resolveTarget(addr, rosterPath, name string) (string, error) {
	if name == "" {
		return addr, nil
	}
	if rosterPath == "" {
		return "", errors.New("-server requires -roster")
	}

	r, err := roster.LoadFile(rosterPath)
	if err != nil {
		return "", err
	}
	info, ok := r.Find(name)
	if !ok {
		return "", fmt.Errorf("server %q not found in roster", name)
	}
	if !info.IsActive {
		return "", fmt.Errorf("server %q is not active", name)
	}
	return info.Address(), nil
}
