package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"meshnode/internal/app"
	"meshnode/pkg/config"
	"meshnode/pkg/logger"
	"meshnode/pkg/shutdown"
)

// build metadata, set via ldflags during release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	eff, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// explicit flags win over env and file
	if setFlags["addr"] {
		eff.Addr = addrVal
	}
	if setFlags["db"] {
		eff.DBPath = dbVal
	}
	if len(setFlags) > 0 {
		eff.Source = "flags"
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
