package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"tripline/internal/models"
	"tripline/internal/store"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type SeedTrip struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	CreatedBy    string   `yaml:"created_by"`
	Participants []string `yaml:"participants"`
}

type TripsConfig struct {
	Trips []SeedTrip `yaml:"trips"`
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
		tripsPath = flag.String("trips", "configs/trips.yaml", "path to trips.yaml")
		dbPath    = flag.String("db", "./data/tripline.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*tripsPath)
	if err != nil {
		return fmt.Errorf("read trips: %w", err)
	}
	var cfg TripsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse trips: %w", err)
	}
	if len(cfg.Trips) == 0 {
		return fmt.Errorf("no trips in yaml")
	}

	st, err := store.New(*dbPath, nil, &logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	updated := 0
	for _, seed := range cfg.Trips {
		if seed.ID == "" || seed.Title == "" || seed.CreatedBy == "" {
			continue
		}
		start, err := time.Parse("2006-01-02", seed.StartDate)
		if err != nil {
			return fmt.Errorf("trip %s: bad start_date: %w", seed.ID, err)
		}
		end, err := time.Parse("2006-01-02", seed.EndDate)
		if err != nil {
			return fmt.Errorf("trip %s: bad end_date: %w", seed.ID, err)
		}

		existing, err := st.GetTrip(ctx, seed.ID)
		if err == nil {
			existing.Title = seed.Title
			existing.Description = seed.Description
			existing.StartDate = start
			existing.EndDate = end
			for _, p := range seed.Participants {
				if !existing.HasParticipant(p) {
					existing.Participants = append(existing.Participants, p)
				}
			}
			if _, err = st.UpdateTripDoc(ctx, existing, existing.Version); err != nil {
				return fmt.Errorf("update %s: %w", seed.ID, err)
			}
			updated++
			continue
		}
		if !errors.Is(err, store.ErrTripNotFound) {
			return fmt.Errorf("get %s: %w", seed.ID, err)
		}

		trip := models.NewTrip(seed.Title, seed.Description, start, end, seed.CreatedBy)
		trip.ID = seed.ID
		for _, p := range seed.Participants {
			if !trip.HasParticipant(p) {
				trip.Participants = append(trip.Participants, p)
			}
		}
		if err = st.CreateTrip(ctx, trip); err != nil {
			return fmt.Errorf("create %s: %w", seed.ID, err)
		}
		created++
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
