package service

import (
	"context"
	"fmt"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Block Service: canvas objects and the connectors between them
// ─────────────────────────────────────────────────────────────

// DefaultCode is the starting source of a new code block, per language.
var DefaultCode = map[string]string{
	"javascript": `// title: hello_world

// Point an arrow from another object to the line below.
let input = 'world';

// Point an arrow from the line below.
const output = 'hello ' + input;
`,
	"python": `# title: hello_world

# Point an arrow from another object to the line below.
input = "world"

# Point an arrow from the line below.
output = "hello " + input
`,
}

var defaultSize = map[domain.BlockType][2]float64{
	domain.BlockTypeCode:     {402, 260},
	domain.BlockTypeTable:    {240, 96},
	domain.BlockTypeDatabase: {320, 200},
	domain.BlockTypeImage:    {200, 200},
}

// BlockService manages canvas objects and connectors.
type BlockService struct {
	canvas  *canvas.Canvas
	plugins *PluginRegistry
	emitter EventEmitter
}

func NewBlockService(c *canvas.Canvas, plugins *PluginRegistry, emitter EventEmitter) *BlockService {
	return &BlockService{canvas: c, plugins: plugins, emitter: emitter}
}

// ── Blocks ─────────────────────────────────────────────────

type CreateBlockInput struct {
	PageID   string           `json:"pageId"`
	Type     domain.BlockType `json:"type"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	Width    float64          `json:"width"`
	Height   float64          `json:"height"`
	Content  string           `json:"content"`
	Language string           `json:"language"`
}

func knownType(t domain.BlockType) bool {
	switch t {
	case domain.BlockTypeCode, domain.BlockTypeText, domain.BlockTypeSticky, domain.BlockTypeShapeWithText,
		domain.BlockTypeLink, domain.BlockTypeEmbed, domain.BlockTypeTable, domain.BlockTypeDatabase,
		domain.BlockTypeImage, domain.BlockTypeGroup:
		return true
	}
	return false
}

// CreateBlock places a new object on a page.
func (s *BlockService) CreateBlock(ctx context.Context, in CreateBlockInput) (*domain.Block, error) {
	if in.PageID == "" {
		return nil, fmt.Errorf("create block: page id is required")
	}
	if !knownType(in.Type) {
		return nil, fmt.Errorf("create block: unknown block type %q", in.Type)
	}
	b := &domain.Block{
		PageID:   in.PageID,
		Type:     in.Type,
		X:        in.X,
		Y:        in.Y,
		Width:    in.Width,
		Height:   in.Height,
		Content:  in.Content,
		Language: in.Language,
	}
	if size, ok := defaultSize[b.Type]; ok {
		if b.Width == 0 {
			b.Width = size[0]
		}
		if b.Height == 0 {
			b.Height = size[1]
		}
	} else if b.Width == 0 {
		b.Width = 240
	}
	if b.Type == domain.BlockTypeCode && b.Language == "" {
		b.Language = "javascript"
	}
	if b.Type != domain.BlockTypeCode {
		b.Language = ""
	}
	if b.Type == domain.BlockTypeTable && b.Content == "" {
		b.Content = "[]"
	}

	if err := s.canvas.CreateBlock(b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	if err := s.plugins.OnCreate(ctx, b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	s.emitter.Emit(ctx, "block:created", map[string]string{"blockId": b.ID, "pageId": b.PageID})
	return b, nil
}

// GetBlock returns a block by id.
func (s *BlockService) GetBlock(id string) (*domain.Block, error) {
	b, err := s.canvas.Block(id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("block %s not found", id)
	}
	return b, nil
}

func (s *BlockService) ListBlocks(pageID string) ([]domain.Block, error) {
	return s.canvas.Blocks().ListBlocks(pageID)
}

// ListCodeBlocks returns the code blocks of a page.
func (s *BlockService) ListCodeBlocks(pageID string) ([]domain.Block, error) {
	blocks, err := s.ListBlocks(pageID)
	if err != nil {
		return nil, err
	}
	var code []domain.Block
	for _, b := range blocks {
		if b.Type == domain.BlockTypeCode {
			code = append(code, b)
		}
	}
	return code, nil
}

// UpdateBlockInput changes only the fields that are set.
type UpdateBlockInput struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Content  *string  `json:"content,omitempty"`
	Language *string  `json:"language,omitempty"`
}

func (s *BlockService) UpdateBlock(ctx context.Context, id string, in UpdateBlockInput) (*domain.Block, error) {
	b, err := s.GetBlock(id)
	if err != nil {
		return nil, err
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&b.X, in.X)
	set(&b.Y, in.Y)
	set(&b.Width, in.Width)
	set(&b.Height, in.Height)
	if in.Content != nil {
		b.Content = *in.Content
	}
	if in.Language != nil && b.Type == domain.BlockTypeCode {
		b.Language = *in.Language
	}
	if err := s.canvas.UpdateBlock(b); err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}
	if err := s.plugins.OnUpdate(ctx, b); err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}
	s.emitter.Emit(ctx, "block:updated", map[string]string{"blockId": b.ID, "pageId": b.PageID})
	return b, nil
}

// WriteCode replaces a code block's source. An empty lang keeps the
// current language.
func (s *BlockService) WriteCode(ctx context.Context, id, code, lang string) (*domain.Block, error) {
	b, err := s.GetBlock(id)
	if err != nil {
		return nil, err
	}
	if b.Type != domain.BlockTypeCode {
		return nil, fmt.Errorf("block %s is a %s block, not code", id, b.Type)
	}
	in := UpdateBlockInput{Content: &code}
	if lang != "" {
		in.Language = &lang
	}
	return s.UpdateBlock(ctx, id, in)
}

// SyncFromFile applies an edit made to a block's mirror file.
func (s *BlockService) SyncFromFile(ctx context.Context, id, content string) error {
	b, err := s.canvas.Block(id)
	if err != nil || b == nil || b.Content == content {
		return err
	}
	_, err = s.UpdateBlock(ctx, id, UpdateBlockInput{Content: &content})
	return err
}

// AddCodeBlock creates a code block with the starter template to the
// right of an existing object.
func (s *BlockService) AddCodeBlock(ctx context.Context, nextTo, lang string) (*domain.Block, error) {
	anchor, err := s.GetBlock(nextTo)
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = "javascript"
	}
	code, ok := DefaultCode[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, lang)
	}
	return s.CreateBlock(ctx, CreateBlockInput{
		PageID:   anchor.PageID,
		Type:     domain.BlockTypeCode,
		X:        anchor.X + anchor.Width + s.canvas.Layout().ResultSpacing,
		Y:        anchor.Y,
		Content:  code,
		Language: lang,
	})
}

// DeleteBlock removes a block together with every connector touching it.
func (s *BlockService) DeleteBlock(ctx context.Context, id string) error {
	b, err := s.GetBlock(id)
	if err != nil {
		return err
	}
	if err := s.plugins.OnDelete(ctx, b); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if err := s.canvas.Connections().DeleteConnectionsByNode(id); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if err := s.canvas.Blocks().DeleteBlock(id); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	s.emitter.Emit(ctx, "block:deleted", map[string]string{"blockId": id, "pageId": b.PageID})
	return nil
}

// DeleteBlocksByPage removes every block of a page.
func (s *BlockService) DeleteBlocksByPage(ctx context.Context, pageID string) error {
	blocks, err := s.ListBlocks(pageID)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := s.DeleteBlock(ctx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// ── Connectors ─────────────────────────────────────────────

type ConnectInput struct {
	Start domain.Endpoint `json:"start"`
	End   domain.Endpoint `json:"end"`
	Label string          `json:"label,omitempty"`
}

// Connect draws a connector. At least one end must be attached; the page
// is taken from the first attached end.
func (s *BlockService) Connect(ctx context.Context, in ConnectInput) (*domain.Connection, error) {
	pageID := ""
	for _, e := range []domain.Endpoint{in.Start, in.End} {
		if e.NodeID == "" {
			continue
		}
		node, ok, err := s.canvas.Node(e.NodeID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("connect: node %s not found", e.NodeID)
		}
		if pageID == "" {
			pageID, err = s.pageOf(node)
			if err != nil {
				return nil, err
			}
		}
	}
	if pageID == "" {
		return nil, fmt.Errorf("connect: at least one end must be attached")
	}
	conn := &domain.Connection{PageID: pageID, Start: in.Start, End: in.End, Label: in.Label}
	if err := s.canvas.Connections().CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s.emitter.Emit(ctx, "connection:created", map[string]string{"connectionId": conn.ID, "pageId": pageID})
	return conn, nil
}

func (s *BlockService) pageOf(n canvas.Node) (string, error) {
	if n.Block != nil {
		return n.Block.PageID, nil
	}
	if n.Group != nil {
		return n.Group.PageID, nil
	}
	b, err := s.GetBlock(n.Frame.BlockID)
	if err != nil {
		return "", err
	}
	return b.PageID, nil
}

func (s *BlockService) Disconnect(ctx context.Context, id string) error {
	if err := s.canvas.Connections().DeleteConnection(id); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	s.emitter.Emit(ctx, "connection:deleted", map[string]string{"connectionId": id})
	return nil
}

func (s *BlockService) ListConnections(pageID string) ([]domain.Connection, error) {
	return s.canvas.Connections().ListConnections(pageID)
}
