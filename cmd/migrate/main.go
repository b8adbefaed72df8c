package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"adstudio/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var cmdFlag string
	var timeoutFlag time.Duration
	flag.StringVar(&cmdFlag, "command", string(infra.MigrateUp), "migration command (up, down, status)")
	flag.DurationVar(&timeoutFlag, "timeout", time.Minute, "overall timeout")
	flag.Parse()

	cmd := infra.MigrationCommand(strings.ToLower(strings.TrimSpace(cmdFlag)))
	switch cmd {
	case infra.MigrateUp, infra.MigrateDown, infra.MigrateStatus:
	default:
		exitWithError(fmt.Errorf("unsupported command %q", cmdFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()
	if err := infra.Migrate(ctx, dbURL, cmd, logger); err != nil {
		exitWithError(err)
	}
	logger.Info().Str("command", string(cmd)).Msg("migrations finished")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
