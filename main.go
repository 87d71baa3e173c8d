package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/moosethebrown/tello-net-bridge/config"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "c", "/etc/tello-net-bridge.conf", "path to configuration file")
	flag.Parse()

	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("Error reading config: %s\n", err)
		os.Exit(1)
	}

	app := NewApp(cfg)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)

	app.Start()

	select {
	case <-sigch:
	case err := <-app.Failed():
		fmt.Printf("Error: %s\n", err)
	}

	if err := app.Stop(); err != nil {
		os.Exit(1)
	}
}
