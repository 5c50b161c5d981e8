package models

// Document is the extracted text of one fetched URL
type Document struct {
	Text        string
	Source      string
	Title       string
	ContentType string
}

// Chunk represents a split window of a document with its source metadata
type Chunk struct {
	ID     string
	Text   string
	Source string
	Title  string
	Index  int
}

// ScoredChunk is a search hit. Distance is 1 - cosine similarity, lower is closer.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float32
}
