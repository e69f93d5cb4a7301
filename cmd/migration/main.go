package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"docuvault/vault/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			// Adds the denormalized username column to audit entries so
			// that the trail stays readable after a user is renamed.
			ID: "20260115_audit_username",
			Migrate: func(txn *gorm.DB) error {
				type AuditEntry struct {
					Username string `gorm:"size:50"`
				}
				if txn.Migrator().HasColumn(&AuditEntry{}, "username") {
					return nil
				}
				return txn.Migrator().AddColumn(&AuditEntry{}, "Username")
			},
			Rollback: func(txn *gorm.DB) error {
				type AuditEntry struct{}
				return txn.Migrator().DropColumn(&AuditEntry{}, "username")
			},
		},
	}
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from.")
	databaseUri := flag.String("db_uri", "", "Database uri to run migrations against. Overrides DATABASE_URI.")

	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	uri := *databaseUri
	if uri == "" {
		uri = os.Getenv("DATABASE_URI")
	}
	if uri == "" {
		log.Fatal("must specify -db_uri or set DATABASE_URI")
	}

	db, err := gorm.Open(postgres.Open(postgresDsn(uri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())

	m.InitSchema(func(txn *gorm.DB) error {
		log.Println("empty database detected, creating full schema")
		return txn.AutoMigrate(schema.AllModels()...)
	})

	if err := m.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration complete")
}
