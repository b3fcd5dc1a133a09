// Command app launches the Whisper Desktop window.
package main

import (
	"os"

	"whisper-desktop/internal/bootstrap"
	"whisper-desktop/internal/logging"
)

func main() {
	// Used only until the app has its own configured logger.
	startup, err := logging.New(logging.Options{Level: "info", Format: "auto"})
	if err != nil {
		os.Exit(1)
	}

	app, err := bootstrap.New()
	if err != nil {
		startup.Fatal().Err(err).Msg("bootstrap app")
	}

	if err := app.Run(); err != nil {
		startup.Fatal().Err(err).Msg("run app")
	}
}
