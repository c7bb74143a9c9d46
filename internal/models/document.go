package models

// IndexEntry is one row handed to a vector index. Position is the chunk's
// place in the processor's chunk list.
type IndexEntry struct {
	Position  int
	Content   string
	Embedding []float32
}

// Hit is a search result: the chunk position and its inner-product score.
type Hit struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Answer is the result of a single question.
type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Context  []string `json:"context"`
	Hits     []Hit    `json:"hits"`
}

// Status describes the document currently held by a processor.
type Status struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Indexed bool   `json:"indexed"`
}
