package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raykavin/solspot"
	"github.com/raykavin/solspot/config"
	"github.com/raykavin/solspot/exchange/binance"
	"github.com/raykavin/solspot/logger/zerolog"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "solspot",
		Short:   "All-in SOL/USDC spot trading engine",
		Version: "1.0.0",
		RunE:    run,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := zerolog.New(cfg.Log.Level, cfg.Log.TimeFormat, cfg.Log.Colored, cfg.Log.JSONFormat)
	if err != nil {
		return err
	}

	options := []binance.SpotOption{
		binance.WithCredentials(cfg.Binance.APIKey, cfg.Binance.SecretKey),
	}
	if cfg.Binance.UseTestnet {
		log.Warn("using binance spot testnet")
		options = append(options, binance.WithTestNet())
	}

	exchange, err := binance.NewSpot(ctx, log, options...)
	if err != nil {
		return fmt.Errorf("connect exchange: %w", err)
	}

	bot, err := solspot.NewBot(ctx, cfg, exchange, solspot.WithLogger(log))
	if err != nil {
		return err
	}

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
