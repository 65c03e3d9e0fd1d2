// Command converter is the terminal front end of the currency converter
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/app"
	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/logger"
	"github.com/dalfonso89/currency-converter/internal/platform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	// stdout carries command output, so logs go to stderr and stay quiet unless debugging
	log := logger.New(cfg.LogLevel)
	log.SetOutput(os.Stderr)
	if cfg.LogLevel != "debug" {
		log.SetLevel(logrus.WarnLevel)
	}

	ctx, stop := platform.NewShutdownContext(context.Background())
	open := func(ctx context.Context) (*app.App, error) {
		return app.Build(ctx, cfg, log)
	}

	err = newCLI(ctx, os.Stdout, open).root().Execute(os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
