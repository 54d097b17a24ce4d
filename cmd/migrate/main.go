package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"demand-forecast/internal/config"
	"demand-forecast/internal/repository"
	"demand-forecast/migrations"
	"demand-forecast/pkg/database"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

func main() {
	direction := flag.String("direction", migrations.Up, "Migration direction: up or down")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Driver == repository.DriverMemory || cfg.Database.Driver == "" {
		fmt.Fprintln(os.Stderr, "DB_DRIVER is memory; set it to postgres or sqlite3 to migrate")
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("forecast-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("demand_forecast_migrate", prometheus.NewRegistry())

	// Connect to database
	db, err := database.Open(repository.DatabaseConfig(cfg.Database), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database successfully\n", db.Driver())
	fmt.Printf("Running migration: %s\n", migrations.Name(*direction))

	if err := repository.Migrate(context.Background(), db, *direction); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
