package main

import (
	"flag"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Schema management for the alert governance database, for operators
// who need to migrate outside the server's own startup path.
func main() {
	var (
		path = flag.String("path", "./migrations", "migrations directory")
		dsn  = flag.String("database", "sqlite3://./data/alerting.db", "database URL")
	)
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		log.Fatal("Usage: migrate [-path dir] [-database url] up|down|version|force <v>")
	}

	m, err := migrate.New("file://"+*path, *dsn)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migrate up failed: %v", err)
		}
		log.Println("Governance schema is up to date.")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migrate down failed: %v", err)
		}
		log.Println("Governance schema rolled back.")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Printf("Schema version %d (dirty=%t)", version, dirty)
	case "force":
		if flag.NArg() < 2 {
			log.Fatal("force requires a version argument")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("Invalid version %q: %v", flag.Arg(1), err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Failed to force schema version: %v", err)
		}
		log.Printf("Schema version forced to %d", version)
	default:
		log.Fatalf("Unknown command: %s. Use up, down, version, or force.", command)
	}
}
