package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/idlewatch/server"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/configdb"
	"github.com/cyclopcam/logs"
)

func main() {
	parser := argparse.NewParser("idlewatch", "Detect people who have stopped moving")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "Settings and alert database (overrides the config file)", Default: ""})
	port := parser.Int("", "port", &argparse.Options{Help: "HTTP port (overrides the config file)", Default: 0})
	demo := parser.Flag("", "demo", &argparse.Options{Help: "Run the synthetic demo scene, instead of the configured video source", Default: false})
	noStart := parser.Flag("", "nostart", &argparse.Options{Help: "Don't start the pipeline until asked to via the API", Default: false})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log the creation and retirement of every track", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	} else {
		defaults := config.DefaultConfig()
		cfg = &defaults
		// Without a config file, the only thing we can run is the demo
		cfg.AutoStart = true
	}
	if *dbFile != "" {
		cfg.DB = *dbFile
	}
	if *port != 0 {
		cfg.Listen = fmt.Sprintf(":%v", *port)
	}
	if *demo {
		cfg.Source = config.SourceConfig{Kind: config.SourceDemo}
		cfg.Detector = config.DetectorConfig{Kind: config.DetectorDemo}
		cfg.AutoStart = true
	}
	if *noStart {
		cfg.AutoStart = false
	}
	if *verbose {
		cfg.Verbose = true
	}

	configDB, err := configdb.NewConfigDB(logger, cfg.DB)
	if err != nil {
		logger.Errorf("Failed to open config database: %v", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg, configDB)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	// SYNC-SERVER-PORT
	if err := srv.ListenHTTP(cfg.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
		<-srv.ShutdownComplete
		os.Exit(1)
	}

	<-srv.ShutdownComplete
	logger.Close()
}
