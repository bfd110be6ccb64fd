// Command statekeeper runs the rollup exchange state-keeper: it
// consumes exchange events from a file-backed event source
// (newline-delimited JSON), applies them to the global state through the message
// adapter, forges fixed-size blocks, and periodically checkpoints to
// disk — grounded on the teacher's provers/relayer.go RelayerMain
// entrypoint shape (build config, build the driver, run it, fatal on
// setup error).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kysee/rollup-statekeeper/adapter"
	"github.com/kysee/rollup-statekeeper/keeper"
	keepertypes "github.com/kysee/rollup-statekeeper/keeper/types"
	"github.com/kysee/rollup-statekeeper/state/persist"
	"github.com/rs/zerolog"
)

func main() {
	var flagArgs []string
	if len(os.Args) > 2 {
		flagArgs = os.Args[2:]
	}
	cfg := keepertypes.NewConfig(flagArgs...)
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: statekeeper <event-file> [--flag value ...]")
	}
	eventFile := os.Args[1]

	var persistor persist.Persistor
	if cfg.PersistDir != "" {
		persistor = persist.NewBadgerPersistor(cfg.PersistDir)
	}
	sink := keeper.NewMultiSink(
		keeper.NewLoggingSink(log),
		keeper.NewFileSink(cfg.PersistDir+"/blocks"),
	)

	sk := keeper.New(cfg, persistor, sink, log)
	if err := sk.Resume(); err != nil {
		log.Fatal().Err(err).Msg("failed to resume from persisted snapshot")
	}

	src, err := adapter.NewFileEventSource(eventFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event source")
	}
	defer src.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sk.Run(ctx, src); err != nil {
		log.Fatal().Err(err).Msg("state keeper run loop exited with error")
	}
	log.Info().Msg("state keeper shut down cleanly")
}
