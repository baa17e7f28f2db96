package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tors/internal/admin"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stderr, "warn")

	app := admin.NewApp(cfg, logger, os.Stdin, os.Stdout, int(os.Stdin.Fd()))

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

}
