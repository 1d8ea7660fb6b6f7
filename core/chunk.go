package core

// Chunk is a citable unit of source material surfaced by a tool or the model.
// Two chunks with the same Source and Locator are the same reference; the
// Ordinal is assigned by the reference store on first insertion and never
// changes afterwards.
type Chunk struct {
	Source  string `json:"source"`  // origin system or document id
	Locator string `json:"locator"` // position within the source (URL fragment, page, offset)
	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"`
	Ordinal int    `json:"ordinal,omitempty"` // 1-based citation number, stable once set
}

// Key returns the deduplication key combining source and locator.
func (c Chunk) Key() string { return c.Source + "\x00" + c.Locator }
