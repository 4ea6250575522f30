package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"installbot/internal/config"
	"installbot/internal/database"
	"installbot/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type servicesFile struct {
	Services []models.ServiceType `yaml:"services"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to a yaml file with a services list")
		dbPath     = flag.String("db", "./data/appointments.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("read services: %w", err)
	}
	var file servicesFile
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return fmt.Errorf("parse services: %w", err)
	}
	if err = config.ValidateServices(file.Services); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, updated, err := db.SyncServiceTypes(ctx, file.Services)
	if err != nil {
		return err
	}

	fmt.Printf("done: created=%d updated=%d active=%d\n", created, updated, len(db.ServiceTypes()))
	return nil
}
