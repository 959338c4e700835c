package main

import (
	"flag"
	"os"

	"github.com/goldenseed/entropy/internal/platform/config"
	"github.com/goldenseed/entropy/internal/tools/seedkey"
)

func main() {
	cfg, err := seedkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := seedkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
