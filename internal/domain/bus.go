package domain

// Intent is a user action captured by a channel and handed to the session.
type Intent struct {
	Channel string
	ChatID  string
	Action  Action
	Text    string  // send/upload_text body or scrape URL
	File    FileRef // upload_file only
}

// IntentBus routes intents from channels to the session orchestrator.
type IntentBus interface {
	Publish(intent Intent)
	Subscribe() <-chan Intent
	Close()
}
