// apiserver runs only the CaseLight HTTP API.  Deployments that split the
// API from the background worker ship this binary; caselight serve wires the
// same stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/interfaces/cli"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: env only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	skipMigrations := flag.Bool("skip-migrations", false, "do not run schema migrations on startup")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := cli.RunServe(context.Background(), cfg, logger, *skipMigrations); err != nil {
		logger.Error("api server exited", logging.Err(err))
		os.Exit(1)
	}
}
