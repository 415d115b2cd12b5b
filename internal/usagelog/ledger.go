// ABOUTME: SQLite ledger for per-run token and cost records
// ABOUTME: Append-only analytics store; writes are best-effort and never fail a turn

package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one provider run's consumption, priced.
type Record struct {
	ID               string
	ConversationID   string
	Model            string
	PromptTokens     int
	CompletionTokens int
	ImageCount       int
	InputCost        float64
	OutputCost       float64
	ImageCost        float64
	TotalCost        float64
	CreatedAt        time.Time
}

// Ledger stores run usage records in SQLite.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the ledger database at path, creating the schema and
// parent directories as needed.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "usagelog")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS run_usage (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			image_count INTEGER NOT NULL,
			input_cost REAL NOT NULL,
			output_cost REAL NOT NULL,
			image_cost REAL NOT NULL,
			total_cost REAL NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_run_usage_conversation
			ON run_usage(conversation_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	logger.Info("usage ledger initialized", "path", path)
	return &Ledger{db: db, logger: logger}, nil
}

// Record stores one run's usage. The ID and timestamp are filled in when
// empty.
func (l *Ledger) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO run_usage (
			id, conversation_id, model,
			prompt_tokens, completion_tokens, image_count,
			input_cost, output_cost, image_cost, total_cost,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.ConversationID,
		rec.Model,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.ImageCount,
		rec.InputCost,
		rec.OutputCost,
		rec.ImageCost,
		rec.TotalCost,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}

	l.logger.Debug("recorded run usage",
		"conversation_id", rec.ConversationID,
		"model", rec.Model,
		"total_cost", rec.TotalCost,
	)
	return nil
}

// ConversationTotal sums the recorded cost for one conversation.
func (l *Ledger) ConversationTotal(ctx context.Context, conversationID string) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM run_usage
		WHERE conversation_id = ?
	`, conversationID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing conversation cost: %w", err)
	}
	return total, nil
}

// TotalSince sums all recorded cost at or after the given time.
func (l *Ledger) TotalSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM run_usage
		WHERE created_at >= ?
	`, since.UTC().Format(time.RFC3339)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing cost since %s: %w", since, err)
	}
	return total, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
