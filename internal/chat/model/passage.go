package model

// Passage is a retrieved text unit with its metadata. Score is set by
// similarity retrieval only.
type Passage struct {
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
	Score    *float64       `json:"-"`
}

// MetadataScoreKey is where similarity retrieval mirrors the score.
const MetadataScoreKey = "score"
