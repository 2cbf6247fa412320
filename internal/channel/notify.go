package channel

import (
	"sync"

	"github.com/google/uuid"
)

// TerminalNotifier shows upload status lines in the terminal.
type TerminalNotifier struct {
	r *Renderer
}

func NewTerminalNotifier(r *Renderer) *TerminalNotifier {
	return &TerminalNotifier{r: r}
}

func (n *TerminalNotifier) Loading(message string) string {
	token := uuid.NewString()
	n.r.Notice("⏳ %s", message)
	return token
}

func (n *TerminalNotifier) Success(_ string, message string) {
	n.r.Notice("✔ %s", message)
}

func (n *TerminalNotifier) Error(_ string, message string) {
	n.r.Warn("✖ %s", message)
}

// ChatNotifier sends upload status to the chat an upload came from. Tokens
// map a pending upload to its chat.
type ChatNotifier struct {
	mu      sync.Mutex
	send    func(chatID int64, text string)
	current func() int64
	pending map[string]int64
}

// NewChatNotifier creates a notifier that reports to the chat returned by
// current at the time the upload starts.
func NewChatNotifier(send func(chatID int64, text string), current func() int64) *ChatNotifier {
	return &ChatNotifier{send: send, current: current, pending: make(map[string]int64)}
}

func (n *ChatNotifier) Loading(message string) string {
	token := uuid.NewString()
	chatID := n.current()
	n.mu.Lock()
	n.pending[token] = chatID
	n.mu.Unlock()
	if chatID != 0 {
		n.send(chatID, "⏳ "+message)
	}
	return token
}

func (n *ChatNotifier) Success(token, message string) { n.finish(token, "✅ "+message) }

func (n *ChatNotifier) Error(token, message string) { n.finish(token, "❌ "+message) }

func (n *ChatNotifier) finish(token, text string) {
	n.mu.Lock()
	chatID, ok := n.pending[token]
	delete(n.pending, token)
	n.mu.Unlock()
	if ok && chatID != 0 {
		n.send(chatID, text)
	}
}
