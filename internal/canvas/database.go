package canvas

import (
	"context"
	"encoding/json"
	"fmt"

	"canvasflow/internal/domain"
)

// DatabaseQuerier runs the query stored in a database block.
type DatabaseQuerier interface {
	RunQuery(ctx context.Context, q domain.DatabaseQuery) ([]map[string]any, error)
}

type databaseVariant struct {
	db DatabaseQuerier
}

// NewDatabaseVariant makes database blocks value-bearing: reading one
// runs its query and yields the rows. Database blocks never accept output.
func NewDatabaseVariant(db DatabaseQuerier) Variant {
	return databaseVariant{db: db}
}

func (databaseVariant) Kind() domain.BlockType { return domain.BlockTypeDatabase }
func (databaseVariant) Writable() bool         { return false }

func (d databaseVariant) ReadValue(ctx context.Context, b *domain.Block) (any, error) {
	var q domain.DatabaseQuery
	if err := json.Unmarshal([]byte(b.Content), &q); err != nil {
		return nil, fmt.Errorf("decode database block %s: %w", b.ID, err)
	}
	rows, err := d.db.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	// Rows travel as JSON-shaped values like every other input.
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

func (databaseVariant) WriteValue(_ context.Context, b *domain.Block, _ any) error {
	return fmt.Errorf("database block %s is read-only", b.ID)
}

func (databaseVariant) Resize(*domain.Block, Layout) {}
