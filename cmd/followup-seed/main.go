package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"nurture_backend/internal/followup/repository"
	"nurture_backend/internal/followup/sequences"
	"nurture_backend/platform/config"
	"nurture_backend/platform/db"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

func main() {
	ownerFlag := flag.String("owner", "", "owner id to seed sequences for (required)")
	fileFlag := flag.String("file", "", "YAML file with sequence definitions (defaults to the built-in set)")
	migrate := flag.Bool("migrate", false, "apply database migrations first")
	flag.Parse()

	ownerID, err := uuid.Parse(*ownerFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: followup-seed -owner <uuid> [-file sequences.yaml] [-migrate]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting followup sequence seed", "ownerId", ownerID)

	defs, err := loadDefinitions(*fileFlag)
	if err != nil {
		log.Error("failed to load sequence definitions", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if *migrate {
		if err := db.RunMigrations(ctx, cfg); err != nil {
			log.Error("failed to run database migrations", "error", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	created, err := sequences.New(repository.New(pool), log).SeedDefaults(ctx, ownerID, defs)
	if err != nil {
		log.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	for _, seq := range created {
		log.Info("sequence created", "sequenceId", seq.ID, "name", seq.Name, "steps", seq.TotalSteps)
	}
	log.Info("followup sequence seed complete", "created", len(created), "defined", len(defs))
}

func loadDefinitions(path string) ([]sequences.Definition, error) {
	if path == "" {
		return sequences.DefaultDefinitions()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sequences.LoadDefinitions(f)
}
