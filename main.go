package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	rootCommand := newRootCommand()
	if executeError := rootCommand.Execute(); executeError != nil {
		log.Error().Err(executeError).Msg("relay exited")
		os.Exit(1)
	}
}
