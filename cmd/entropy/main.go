package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	entropycmd "github.com/goldenseed/entropy/internal/cmd/entropy"
)

func main() {
	cfg, err := entropycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ENTROPY] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := entropycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
