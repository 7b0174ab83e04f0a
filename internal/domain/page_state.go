package domain

// PageState is the complete arena of one page: every object, frame, and
// connector on it.
type PageState struct {
	Page        Page         `json:"page"`
	Blocks      []Block      `json:"blocks"`
	Frames      []Frame      `json:"frames"`
	Connections []Connection `json:"connections"`
}
