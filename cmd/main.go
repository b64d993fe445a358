package main

import (
	"log/slog"
	"os"

	"github.com/agor-live/agor/internal/daemon"
	"github.com/agor-live/agor/internal/definitions"
	"github.com/tdeslauriers/carapace/pkg/config"
)

func main() {

	logger := slog.Default().With(slog.String(definitions.ComponentKey, definitions.ComponentMain))

	// service definitions
	def := config.SvcDefinition{
		ServiceName: "agor",
		Tls:         config.MutualTls,
		Requires: config.Requires{
			S2sClient:        false,
			Db:               true,
			IndexSecret:      true,
			AesSecret:        true,
			S2sSigningKey:    false,
			S2sVerifyingKey:  true,
			UserSigningKey:   false,
			UserVerifyingKey: true,
		},
	}

	// load config values for service creation
	config, err := config.Load(def)
	if err != nil {
		logger.Error("failed to load agor config", "err", err.Error())
		os.Exit(1)
	}

	d, err := daemon.New(*config)
	if err != nil {
		logger.Error("failed to create access control daemon", "err", err.Error())
		os.Exit(1)
	}

	defer d.CloseDb()

	if err := d.Run(); err != nil {
		logger.Error("failed to run agor access control daemon", "err", err.Error())
		os.Exit(1)
	}

	select {}
}
