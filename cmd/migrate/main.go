package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/repository/postgres"
	"github.com/pratik-mahalle/bibleplan/migrations"
)

func main() {
	status := flag.Bool("status", false, "list pending migrations without applying them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database\n", cfg.Database.Driver)

	if *status {
		pending, err := postgres.PendingFor(db, migrations.GetFS())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
			os.Exit(1)
		}
		if len(pending) == 0 {
			fmt.Println("Database is up to date")
			return
		}
		for _, name := range pending {
			fmt.Printf("pending  %s\n", name)
		}
		return
	}

	applied, err := postgres.RunMigrations(db, cfg.Database.Driver, migrations.GetFS())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	if applied == 0 {
		fmt.Println("No pending migrations")
		return
	}
	fmt.Printf("Applied %d migration(s)\n", applied)
}
