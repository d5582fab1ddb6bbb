package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/example/control-assessor/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $ASSESSOR_CONFIG)")
	flag.Parse()

	a, err := app.New(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := app.NotifyContext(context.Background())
	defer stop()

	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
