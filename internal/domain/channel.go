package domain

import "context"

// Channel is a user-facing front-end (CLI, Telegram) for the single session.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus IntentBus) error
	Stop() error
}
