package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bank-reconciliation-service/cmd/reconciler/cmd"
	"bank-reconciliation-service/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.GetGlobalLogger().Info("Received interrupt signal, finishing in-flight transactions...")
		cancel()
	}()

	code := cmd.ExecuteContext(ctx)
	cancel()
	os.Exit(code)
}
