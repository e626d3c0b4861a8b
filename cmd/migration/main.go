package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"dirstore/directory/registry"
	"dirstore/directory/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg and no DATABASE_URI env var set")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	envFile := flag.String("env_file", "", "Optional .env file to load before reading DATABASE_URI")
	seedFile := flag.String("seed", "", "Optional YAML file of attribute definitions to register after migrating")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading env file %v: %v", *envFile, err)
		}
	}
	uri := *dbUri
	if uri == "" {
		uri = os.Getenv("DATABASE_URI")
	}

	db, err := gorm.Open(postgres.Open(postgresDsn(uri)), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "1",
			Migrate: func(txn *gorm.DB) error { return txn.AutoMigrate(schema.AllModels()...) },
			// Rollback is not supported, dropping the directory tables is not
			// something the migration tool should be able to do.
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")

		return txn.AutoMigrate(schema.AllModels()...)
	})

	if err := migration.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *seedFile != "" {
		data, err := os.ReadFile(*seedFile)
		if err != nil {
			log.Fatalf("error reading seed file %v: %v", *seedFile, err)
		}
		seed, err := registry.ParseSeed(data)
		if err != nil {
			log.Fatalf("error parsing seed file %v: %v", *seedFile, err)
		}
		if err := registry.ApplySeed(db, seed); err != nil {
			log.Fatalf("error applying attribute seed: %v", err)
		}
	}

	log.Println("migration completed successfully")
}
