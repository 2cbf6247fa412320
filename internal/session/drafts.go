package session

import (
	"sync"

	"ragdesk/internal/domain"
)

// Drafts are the input fields of the session, one per text-based action.
type Drafts struct {
	mu     sync.Mutex
	fields map[domain.Action]string
}

func NewDrafts() *Drafts {
	return &Drafts{fields: make(map[domain.Action]string)}
}

// Set replaces the draft of an action.
func (d *Drafts) Set(action domain.Action, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields[action] = text
}

// Append adds a line to the draft of an action.
func (d *Drafts) Append(action domain.Action, line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur := d.fields[action]; cur != "" {
		d.fields[action] = cur + "\n" + line
		return
	}
	d.fields[action] = line
}

func (d *Drafts) Get(action domain.Action) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fields[action]
}

func (d *Drafts) Clear(action domain.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fields, action)
}
