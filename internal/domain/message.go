package domain

import "time"

// Kind classifies what a timeline entry carries.
type Kind string

const (
	KindText  Kind = "text"
	KindFile  Kind = "file"
	KindVideo Kind = "video"
)

// Originator tells who produced a timeline entry.
type Originator string

const (
	FromUser      Originator = "user"
	FromAssistant Originator = "assistant"
)

// Source is a retrieved document cited by an assistant answer.
type Source struct {
	Name     string         `json:"source_name"`
	Excerpt  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is one entry of the session timeline.
type Message struct {
	ID           int64      `json:"id"`
	Kind         Kind       `json:"type"`
	Content      string     `json:"content"`
	Originator   Originator `json:"originator"`
	FileName     string     `json:"file_name,omitempty"`
	Sources      []Source   `json:"sources"`
	AnswerSource string     `json:"answer_source"`
	ReplyTo      int64      `json:"reply_to,omitempty"` // optimistic entry this result settles
	CreatedAt    time.Time  `json:"created_at"`
}

// IsUser reports whether the entry was produced by the user.
func (m Message) IsUser() bool { return m.Originator == FromUser }

// UserText builds an optimistic text entry.
func UserText(content string) Message {
	return Message{Kind: KindText, Content: content, Originator: FromUser}
}

// UserFile builds an optimistic file (or video) entry for an uploaded blob.
func UserFile(ref FileRef) Message {
	kind := KindFile
	if ref.IsVideo() {
		kind = KindVideo
	}
	return Message{Kind: kind, Content: ref.Reference(), Originator: FromUser, FileName: ref.Name}
}

// AssistantText builds a result entry.
func AssistantText(content string, sources []Source, answerSource string) Message {
	if sources == nil {
		sources = []Source{}
	}
	return Message{
		Kind:         KindText,
		Content:      content,
		Originator:   FromAssistant,
		Sources:      sources,
		AnswerSource: answerSource,
	}
}
