package domain

// Frame anchors connectors to one declaring line of a code block.
// Line is 1-based.
type Frame struct {
	ID      string  `json:"id"`
	BlockID string  `json:"blockId"`
	GroupID string  `json:"groupId"`
	Line    int     `json:"line"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Group ties a code block and its frames together so they move as one.
type Group struct {
	ID      string `json:"id"`
	PageID  string `json:"pageId"`
	BlockID string `json:"blockId"`
}

type FrameStore interface {
	CreateFrame(f *Frame) error
	ListFrames(blockID string) ([]Frame, error)
	GetFrame(id string) (*Frame, error)
	UpdateFrame(f *Frame) error
	DeleteFrame(id string) error
	DeleteFramesByBlock(blockID string) error
}

type GroupStore interface {
	CreateGroup(g *Group) error
	GetGroup(id string) (*Group, error)
	GetGroupByBlock(blockID string) (*Group, error)
	DeleteGroup(id string) error
}
