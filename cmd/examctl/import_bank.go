package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gokatarajesh/exam-engine/internal/db"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

var importBankCmd = &cobra.Command{
	Use:   "import-bank <file.json>",
	Short: "Load a question bank file into the curated question store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		driverName, _ := cmd.Flags().GetString("driver")
		dsn, _ := cmd.Flags().GetString("dsn")

		driver, err := db.ParseDriver(driverName)
		if err != nil {
			return err
		}
		bank, err := question.LoadBank(args[0])
		if err != nil {
			return err
		}

		conn, err := db.Open(ctx, driver, dsn)
		if err != nil {
			return fmt.Errorf("open %s: %w", driver, err)
		}
		defer conn.Close()
		if err := db.Migrate(ctx, conn, driver, nil); err != nil {
			return err
		}

		repo := repository.NewQuestionRepository(repository.New(conn))
		n, err := importBank(cmd, repo, bank)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions\n", n)
		return nil
	},
}

func init() {
	importBankCmd.Flags().String("driver", envOr("DB_DRIVER", "sqlite"), "Database driver: postgres or sqlite")
	importBankCmd.Flags().String("dsn", os.Getenv("DB_DSN"), "Database DSN (defaults to DB_DSN)")
}

func importBank(cmd *cobra.Command, repo *repository.QuestionRepository, bank *question.StaticSource) (int, error) {
	logger := commandLogger(cmd)
	n := 0
	for _, sectionID := range bank.SectionIDs() {
		for _, q := range bank.Questions(sectionID) {
			if err := repo.Insert(cmd.Context(), question.ToBank(sectionID, q)); err != nil {
				return n, fmt.Errorf("insert %s/%s: %w", sectionID, q.ID, err)
			}
			n++
		}
		logger.Debug().Str("section_id", sectionID).Msg("section imported")
	}
	return n, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
