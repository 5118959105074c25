package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/domain"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
)

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("migrator init: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(group.Migrations) == 0 {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrations applied, group %d", group.ID)
	return nil
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string              `bun:"id,pk"`
	Title     string              `bun:"title"`
	Data      domain.QuizDocument `bun:"data,type:jsonb"`
	UpdatedAt time.Time           `bun:"updated_at"`
}

// QuizWriter stores quizzes in the table read by QuizLoader.
type QuizWriter struct {
	db  *bun.DB
	now func() time.Time
}

func NewQuizWriter(db *bun.DB) *QuizWriter {
	return &QuizWriter{db: db, now: time.Now}
}

// Upsert validates quiz and inserts or replaces it.
func (w *QuizWriter) Upsert(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	row := &quizRow{
		ID:        quiz.ID,
		Title:     quiz.Title,
		Data:      quiz.Document(),
		UpdatedAt: w.now(),
	}
	_, err := w.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert quiz %s: %w", quiz.ID, err)
	}
	return nil
}
