package main

import (
	"context"
	"fmt"
	"log"

	"github.com/xelth-com/eckbackoffice/internal/config"
	"github.com/xelth-com/eckbackoffice/internal/database"
	"github.com/xelth-com/eckbackoffice/internal/logger"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/activity"
)

func main() {
	fmt.Println("Repairing activity history for tiers and traites...")

	// 1. Load Config & DB
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	db, err := database.Connect(cfg.Database, lg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := models.Migrate(db.DB); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// 2. Backfill missing Création entries
	res, err := activity.NewLogger(db.DB, lg).Repair(context.Background())
	if err != nil {
		log.Fatalf("Repair failed: %v", err)
	}

	fmt.Printf("Tiers: %d entries created\n", res.Tiers)
	fmt.Printf("Traites: %d entries created\n", res.Traites)
}
