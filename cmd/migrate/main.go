package main

import (
	"log"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"

	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/dbmigrate"
)

func main() {
	usage := "usage: go run ./cmd/migrate [" + strings.Join(dbmigrate.Commands, "|") + "]"
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	command := os.Args[1]
	if !dbmigrate.ValidCommand(command) {
		log.Fatalf("unsupported command %q; %s", command, usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	dbURL, source, warning, err := dbmigrate.SelectDatabaseURL(cfg, false)
	if err != nil {
		log.Fatal(err)
	}
	if warning != "" {
		log.Printf("WARN migrate: %s", warning)
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = dbmigrate.DefaultMigrationsDir
	}
	log.Printf("migrate: command=%s using=%s dir=%s", command, source, dir)

	if err := dbmigrate.Run(command, dbURL, dir); err != nil {
		log.Fatal(err)
	}

	log.Printf("migrate: %s completed successfully", command)
}
