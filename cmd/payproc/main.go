package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/resilient-tech/payments-processor/cmd/payproc/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
