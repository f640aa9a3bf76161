package main

import (
	"os"
	"os/signal"

	"github.com/habedi/gauth/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const debugEnv = "DEBUG_GAUTH"

func main() {
	configureLogLevelFromEnv()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, func(msg string) { log.Error().Msg(msg) }, os.Exit)

	cmd.Execute()
}

// configureLogLevelFromEnv enables debug logging when DEBUG_GAUTH is set to
// anything other than "", "0" or "false", and disables logging otherwise.
func configureLogLevelFromEnv() {
	switch os.Getenv(debugEnv) {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	return stopChan
}

// handleInterrupt exits with status 1 on the first interrupt.
func handleInterrupt(stopChan chan os.Signal, logFn func(string), exitFn func(int)) {
	<-stopChan
	logFn("Interrupt signal received. Exiting...")
	exitFn(1)
}
