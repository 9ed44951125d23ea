// Command export writes an account's bookings for a date range to an XLSX
// file under exports.path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/database"
	"tripplanner/internal/export"
	"tripplanner/internal/logging"
	"tripplanner/internal/service"
)

func main() {
	account := flag.String("account", "", "account id")
	fromFlag := flag.String("from", "", "first day, YYYY-MM-DD")
	toFlag := flag.String("to", "", "last day, YYYY-MM-DD")
	flag.Parse()

	if *account == "" || *fromFlag == "" || *toFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: export -account <id> -from YYYY-MM-DD -to YYYY-MM-DD")
		os.Exit(2)
	}

	from, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		log.Fatalf("invalid -from: %v", err)
	}
	to, err := time.Parse("2006-01-02", *toFlag)
	if err != nil {
		log.Fatalf("invalid -to: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Fatal().Err(err).Msg("init database")
	}
	defer db.Close()

	bookings := service.NewBookingService(db, db, nil, nil, nil, service.RulesFromConfig(cfg.Lifecycle), logging.Component(logger, "bookings"))
	list, err := bookings.InRange(context.Background(), *account, from, to.AddDate(0, 0, 1))
	if err != nil {
		logger.Fatal().Err(err).Msg("load bookings")
	}

	path, err := export.SaveBookings(cfg.Exports.Path, from, to, list)
	if err != nil {
		logger.Fatal().Err(err).Msg("write export")
	}
	logger.Info().Str("file_path", path).Int("bookings", len(list)).Msg("Excel file created")
}
