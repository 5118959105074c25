package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/content"
	"live-quiz-service/internal/infra/postgres"
)

// NewSeedCmd writes quizzes into Postgres: the bundled samples, or the
// quizzes of a YAML file when --file is given.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store quizzes in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML quiz file to import instead of the bundled samples")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	quizzes, err := content.Samples()
	if file != "" {
		quizzes, err = content.LoadFile(file)
	}
	if err != nil {
		return err
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	writer := postgres.NewQuizWriter(db)
	for _, quiz := range quizzes {
		if err := writer.Upsert(ctx, quiz); err != nil {
			return err
		}
		log.Printf("seeded quiz %s", quiz.ID)
	}
	return nil
}
