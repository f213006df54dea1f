package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/exam-engine/db/migrations"
	"github.com/gokatarajesh/exam-engine/internal/db"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, or status")
		driver  = flag.String("driver", getEnv("DB_DRIVER", "postgres"), "Database driver: postgres or sqlite")
		dsn     = flag.String("dsn", os.Getenv("DB_DSN"), "Database DSN (defaults to DB_DSN)")
		dir     = flag.String("dir", "", "Directory containing migration files (defaults to the embedded set)")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	drv, err := db.ParseDriver(*driver)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid driver")
	}

	var fsys fs.FS = migrations.FS
	if *dir != "" {
		if _, err := os.Stat(*dir); os.IsNotExist(err) {
			log.Fatal().Str("dir", *dir).Msg("migration directory does not exist")
		}
		fsys = os.DirFS(*dir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, drv, *dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", string(drv)).Msg("failed to open database connection")
	}
	defer conn.Close()

	log.Info().
		Str("driver", string(drv)).
		Bool("embedded", *dir == "").
		Msg("connected to database")

	switch *command {
	case "up":
		if err := db.Migrate(ctx, conn, drv, fsys); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Msg("migrations applied successfully")

	case "down", "status":
		goose.SetBaseFS(fsys)
		if err := goose.SetDialect(drv.Dialect()); err != nil {
			log.Fatal().Err(err).Msg("failed to set dialect")
		}
		if *command == "down" {
			if err := goose.DownContext(ctx, conn, "."); err != nil {
				log.Fatal().Err(err).Msg("failed to run migrations down")
			}
			log.Info().Msg("migrations rolled back successfully")
			return
		}
		if err := goose.StatusContext(ctx, conn, "."); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}

	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, or status")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
