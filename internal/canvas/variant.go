package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

// Variant is the per-kind behavior of a value-bearing block: how to read
// the value it holds, how to overwrite it, and how to fit its bounds to
// new content.
type Variant interface {
	Kind() domain.BlockType
	Writable() bool
	ReadValue(ctx context.Context, b *domain.Block) (any, error)
	WriteValue(ctx context.Context, b *domain.Block, v any) error
	Resize(b *domain.Block, l Layout)
}

// Registry maps block kinds to their variants.
type Registry struct {
	mu       sync.RWMutex
	variants map[domain.BlockType]Variant
}

// NewRegistry returns a registry holding the built-in variants.
func NewRegistry() *Registry {
	r := &Registry{variants: make(map[domain.BlockType]Variant)}
	for _, k := range []domain.BlockType{domain.BlockTypeText, domain.BlockTypeSticky, domain.BlockTypeShapeWithText} {
		r.Register(textVariant{kind: k})
	}
	r.Register(codeVariant{})
	r.Register(urlVariant{kind: domain.BlockTypeLink})
	r.Register(urlVariant{kind: domain.BlockTypeEmbed})
	r.Register(tableVariant{})
	return r
}

// Register adds v. Panics if its kind is already registered.
func (r *Registry) Register(v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.variants[v.Kind()]; exists {
		panic(fmt.Sprintf("canvas: variant %q already registered", v.Kind()))
	}
	r.variants[v.Kind()] = v
}

func (r *Registry) Lookup(kind domain.BlockType) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[kind]
	return v, ok
}

// ── Text ──────────────────────────────────────────────────

type textVariant struct{ kind domain.BlockType }

func (t textVariant) Kind() domain.BlockType { return t.kind }
func (textVariant) Writable() bool           { return true }

func (textVariant) ReadValue(_ context.Context, b *domain.Block) (any, error) {
	return b.Content, nil
}

func (textVariant) WriteValue(_ context.Context, b *domain.Block, v any) error {
	b.Content = value.Stringify(v)
	return nil
}

func (textVariant) Resize(b *domain.Block, l Layout) {
	h := float64(strings.Count(b.Content, "\n")+1) * l.TextHeight
	if h > b.Height {
		b.Height = h
	}
}

// ── Code ──────────────────────────────────────────────────

type codeVariant struct{}

func (codeVariant) Kind() domain.BlockType { return domain.BlockTypeCode }
func (codeVariant) Writable() bool         { return true }

func (codeVariant) ReadValue(_ context.Context, b *domain.Block) (any, error) {
	return map[string]any{"code": b.Content, "language": b.Language}, nil
}

// WriteValue shows v as source text: JSON for objects and arrays,
// plain text for everything else.
func (codeVariant) WriteValue(_ context.Context, b *domain.Block, v any) error {
	b.Content = value.Stringify(v)
	switch v.(type) {
	case map[string]any, []any:
		b.Language = "json"
	default:
		b.Language = "plaintext"
	}
	return nil
}

func (codeVariant) Resize(b *domain.Block, l Layout) {
	lines := strings.Count(b.Content, "\n") + 2
	if h := float64(lines) * l.TextHeight; h > b.Height {
		b.Height = h
	}
}

// ── Link and embed ────────────────────────────────────────

type urlVariant struct{ kind domain.BlockType }

func (u urlVariant) Kind() domain.BlockType { return u.kind }
func (urlVariant) Writable() bool           { return true }

func (urlVariant) ReadValue(_ context.Context, b *domain.Block) (any, error) {
	return b.Content, nil
}

func (urlVariant) WriteValue(_ context.Context, b *domain.Block, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s block expects a url string, got %T", b.Type, v)
	}
	b.Content = s
	return nil
}

func (urlVariant) Resize(*domain.Block, Layout) {}

// ── Table ─────────────────────────────────────────────────

const (
	tableCellWidth  = 120
	tableCellHeight = 32
)

type tableVariant struct{}

func (tableVariant) Kind() domain.BlockType { return domain.BlockTypeTable }
func (tableVariant) Writable() bool         { return true }

func (tableVariant) ReadValue(_ context.Context, b *domain.Block) (any, error) {
	rows, err := TableRows(b)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteValue replaces the grid with v. Values with no table shape leave
// the block untouched.
func (tableVariant) WriteValue(_ context.Context, b *domain.Block, v any) error {
	rows := FormatTable(v)
	if rows == nil {
		return nil
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	b.Content = string(data)
	return nil
}

func (tableVariant) Resize(b *domain.Block, _ Layout) {
	rows, err := TableRows(b)
	if err != nil || len(rows) == 0 {
		return
	}
	b.Width = float64(len(rows[0])) * tableCellWidth
	b.Height = float64(len(rows)) * tableCellHeight
}

// TableRows decodes a table block's grid.
func TableRows(b *domain.Block) ([][]string, error) {
	if strings.TrimSpace(b.Content) == "" {
		return [][]string{}, nil
	}
	var rows [][]string
	if err := json.Unmarshal([]byte(b.Content), &rows); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", b.ID, err)
	}
	return rows, nil
}
