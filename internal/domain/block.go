package domain

import "time"

type BlockType string

const (
	BlockTypeCode          BlockType = "code"
	BlockTypeText          BlockType = "text"
	BlockTypeSticky        BlockType = "sticky"
	BlockTypeShapeWithText BlockType = "shape_with_text"
	BlockTypeLink          BlockType = "link"
	BlockTypeEmbed         BlockType = "embed"
	BlockTypeTable         BlockType = "table"
	BlockTypeDatabase      BlockType = "database"
	BlockTypeImage         BlockType = "image"
	BlockTypeGroup         BlockType = "group"
)

// Block is any object placed on a canvas page. Code blocks carry Language;
// every other kind ignores it.
type Block struct {
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	Type      BlockType `json:"type"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Content   string    `json:"content"`   // source code, text, url, or table JSON
	Language  string    `json:"language"`  // code blocks only
	GroupID   string    `json:"groupId"`   // empty until the block is grouped with its frames
	FilePath  string    `json:"filePath"`  // mirrored source file for code blocks
	StyleJSON string    `json:"styleJson"` // colors, borders, etc.
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type BlockStore interface {
	CreateBlock(b *Block) error
	GetBlock(id string) (*Block, error)
	ListBlocks(pageID string) ([]Block, error)
	UpdateBlock(b *Block) error
	DeleteBlock(id string) error
	DeleteBlocksByPage(pageID string) error
}

// Code is a language-tagged source text. It is also the shape of a
// library reference pulled in from another code block.
type Code struct {
	Language string `json:"language" msgpack:"language" validate:"required"`
	Code     string `json:"code" msgpack:"code"`
}
