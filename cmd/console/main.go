package main

import (
	"flag"
	"log"

	"github.com/otaviojr/truenorth/internal/app"
)

func main() {
	configPath := flag.String("config", "./truenorth_config.txt", "path to the configuration file")
	flag.Parse()

	if err := app.RunConsole(*configPath); err != nil {
		log.Fatalf("console: %v", err)
	}
}
