package domain

import "context"

// Action names one of the four outbound user actions.
type Action string

const (
	ActionSend       Action = "send"
	ActionUploadFile Action = "upload_file"
	ActionUploadText Action = "upload_text"
	ActionScrape     Action = "scrape"
)

// Answer is the normalized result of any dispatched action.
type Answer struct {
	Text         string
	Sources      []Source
	AnswerSource string
}

// Backend is the remote assistant. Each call performs exactly one request and
// never retries; failures are returned, never applied to any local state.
type Backend interface {
	Send(ctx context.Context, text string, cfg AgentConfig) (*Answer, error)
	UploadFile(ctx context.Context, file FileRef, cfg AgentConfig) (*Answer, error)
	UploadText(ctx context.Context, text string, cfg AgentConfig) (*Answer, error)
	Scrape(ctx context.Context, url string, cfg AgentConfig) (*Answer, error)
}

// Notifier shows transient status around file uploads. It owns no timeline state.
type Notifier interface {
	Loading(message string) (token string)
	Success(token, message string)
	Error(token, message string)
}
