// Command reclaim runs one mark-and-sweep pass over upload storage.
// By default it only reports orphans; pass -execute to delete them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tutorlink/backend/internal/config"
	"github.com/tutorlink/backend/internal/database"
	"github.com/tutorlink/backend/internal/knowledge"
	"github.com/tutorlink/backend/internal/reclaimer"
	"github.com/tutorlink/backend/internal/registry"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		execute bool
		timeout time.Duration
		asJSON  bool
	)
	flag.BoolVar(&execute, "execute", false, "Delete orphans instead of only reporting them")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall run timeout")
	flag.BoolVar(&asJSON, "json", false, "Print the report as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r := reclaimer.New(
		registry.NewPostgresStore(db.Pool),
		knowledge.NewPostgresIndex(db.Pool),
		cfg.Upload.Dir,
	)

	report, err := r.Run(ctx, execute)
	if err != nil {
		log.Fatal().Err(err).Msg("Reclaim run failed")
	}

	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode report")
		}
		fmt.Println(string(data))
		return
	}

	printReport(report)
	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}

func printReport(report *reclaimer.Report) {
	mode := "dry-run"
	if !report.DryRun {
		mode = "execute"
	}
	fmt.Printf("Reclaim (%s)\n", mode)
	fmt.Printf("  registry orphans: %d\n", len(report.RegistryOrphans))
	for _, c := range report.RegistryOrphans {
		fmt.Printf("    %s  %s  (%d bytes)\n", c.FileID, c.Path, c.Size)
	}
	fmt.Printf("  disk orphans:     %d\n", len(report.DiskOrphans))
	for _, c := range report.DiskOrphans {
		fmt.Printf("    %s  (%d bytes)\n", c.Path, c.Size)
	}
	if !report.DryRun {
		fmt.Printf("  reclaimed bytes:  %d\n", report.ReclaimedBytes)
	}
	if len(report.Failures) > 0 {
		fmt.Printf("  failures:         %d\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Printf("    %s: %s\n", f.Path, f.Reason)
		}
	}
}
