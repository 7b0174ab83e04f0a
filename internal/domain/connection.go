package domain

import "time"

type ConnectionStyle string

const (
	ConnectionStyleSolid  ConnectionStyle = "solid"
	ConnectionStyleDashed ConnectionStyle = "dashed"
	ConnectionStyleDotted ConnectionStyle = "dotted"
)

// Magnet is the anchor point on the node an endpoint attaches to.
type Magnet string

const (
	MagnetNone   Magnet = "NONE"
	MagnetAuto   Magnet = "AUTO"
	MagnetTop    Magnet = "TOP"
	MagnetLeft   Magnet = "LEFT"
	MagnetBottom Magnet = "BOTTOM"
	MagnetRight  Magnet = "RIGHT"
	MagnetCenter Magnet = "CENTER"
)

// Endpoint is one side of a connector. With an empty NodeID (or a NONE
// magnet) it is free-floating and only X/Y mean anything.
type Endpoint struct {
	NodeID string  `json:"nodeId"`
	Magnet Magnet  `json:"magnet"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// References reports whether the endpoint names a node at all, regardless
// of whether that node still exists.
func (e Endpoint) References() bool {
	return e.NodeID != "" && e.Magnet != MagnetNone
}

// Connection is a directed edge record between two endpoints. It is stored
// independently of the nodes it touches and looked up by node id.
type Connection struct {
	ID        string          `json:"id"`
	PageID    string          `json:"pageId"`
	Start     Endpoint        `json:"start"`
	End       Endpoint        `json:"end"`
	Label     string          `json:"label"`
	Color     string          `json:"color"`
	Style     ConnectionStyle `json:"style"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ConnectionStore interface {
	CreateConnection(c *Connection) error
	GetConnection(id string) (*Connection, error)
	ListConnections(pageID string) ([]Connection, error)
	ListConnectionsByNode(nodeID string) ([]Connection, error)
	UpdateConnection(c *Connection) error
	DeleteConnection(id string) error
	DeleteConnectionsByPage(pageID string) error
	DeleteConnectionsByNode(nodeID string) error
}
