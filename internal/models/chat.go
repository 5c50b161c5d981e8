package models

// Speaker identifies who produced a conversation turn
type Speaker int

const (
	User Speaker = iota
	Assistant
)

func (s Speaker) String() string {
	switch s {
	case User:
		return "User"
	case Assistant:
		return "Assistant"
	default:
		return "Unknown"
	}
}

// Turn is one entry of the conversation history
type Turn struct {
	Speaker Speaker
	Text    string
}

// Answer is the answerer's response to a question
type Answer struct {
	Question string
	Text     string
	Sources  []string
	Chunks   []ScoredChunk
}
