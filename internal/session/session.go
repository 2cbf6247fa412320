// Package session owns the single user session: its timeline, its agent
// configuration and its input drafts. Every user action is inserted into the
// timeline first, then dispatched in the background and settled with exactly
// one result entry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ragdesk/internal/bus"
	"ragdesk/internal/domain"
	"ragdesk/internal/journal"
	"ragdesk/internal/metrics"
	"ragdesk/internal/timeline"
)

// Fixed texts shown in the timeline and the notifier.
const (
	ErrSendText       = "Sorry, there was an error processing your request."
	ErrUploadFileText = "Sorry, there was an error uploading your file."
	ErrUploadTextText = "Sorry, there was an error processing your text."
	ErrScrapeText     = "Sorry, there was an error scraping the website."

	NotifyUploading = "Uploading file..."
	NotifyUploaded  = "File uploaded successfully!"
	NotifyFailed    = "Failed to upload file"
)

var failureText = map[domain.Action]string{
	domain.ActionSend:       ErrSendText,
	domain.ActionUploadFile: ErrUploadFileText,
	domain.ActionUploadText: ErrUploadTextText,
	domain.ActionScrape:     ErrScrapeText,
}

// errNoAnswer settles a call that returned neither an answer nor an error.
var errNoAnswer = errors.New("backend returned no answer")

// ScrapeNotice is the optimistic entry recorded for a scrape request.
func ScrapeNotice(url string) string {
	return fmt.Sprintf("Scraping site: %s...", url)
}

// Recorder persists settled dispatches.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Session is the orchestrator for one user session.
type Session struct {
	timeline *timeline.Timeline
	backend  domain.Backend
	notifier domain.Notifier
	events   *bus.EventBus
	journal  Recorder
	metrics  *metrics.Dispatch
	logger   *slog.Logger

	cfgMu sync.RWMutex
	cfg   domain.AgentConfig

	drafts   *Drafts
	inflight atomic.Int64
	wg       sync.WaitGroup
}

// Config holds the collaborators of a session. Timeline and Backend are
// required; the rest are optional.
type Config struct {
	Timeline *timeline.Timeline
	Backend  domain.Backend
	Notifier domain.Notifier
	Events   *bus.EventBus
	Journal  Recorder
	Metrics  *metrics.Dispatch
	Agent    domain.AgentConfig // zero value means DefaultAgentConfig
	Logger   *slog.Logger
}

// New creates a session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Agent == (domain.AgentConfig{}) {
		cfg.Agent = domain.DefaultAgentConfig()
	}
	if cfg.Timeline == nil {
		cfg.Timeline = timeline.New(cfg.Events)
	}
	return &Session{
		timeline: cfg.Timeline,
		backend:  cfg.Backend,
		notifier: cfg.Notifier,
		events:   cfg.Events,
		journal:  cfg.Journal,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		cfg:      cfg.Agent,
		drafts:   NewDrafts(),
	}
}

// Timeline returns the session timeline.
func (s *Session) Timeline() *timeline.Timeline { return s.timeline }

// Drafts returns the session input fields.
func (s *Session) Drafts() *Drafts { return s.drafts }

// AgentConfig returns a copy of the active configuration.
func (s *Session) AgentConfig() domain.AgentConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetAgentConfig replaces the active configuration. Actions already in flight
// keep the configuration they were dispatched with.
func (s *Session) SetAgentConfig(cfg domain.AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.logger.Info("agent config changed", "config", cfg.String())
	s.emit(bus.EventConfigChanged, map[string]any{"config": cfg})
	return nil
}

// SetConfigField replaces one field by its wire name.
func (s *Session) SetConfigField(field, value string) (domain.AgentConfig, error) {
	next, err := s.AgentConfig().With(field, value)
	if err != nil {
		return s.AgentConfig(), err
	}
	if err := s.SetAgentConfig(next); err != nil {
		return s.AgentConfig(), err
	}
	return next, nil
}

// InFlight returns the number of dispatched, unsettled actions.
func (s *Session) InFlight() int { return int(s.inflight.Load()) }

// Wait blocks until every dispatched action has settled and its timeline
// events have been delivered.
func (s *Session) Wait() {
	s.wg.Wait()
	s.timeline.Flush()
}

// Send asks the assistant a question. It reports whether an action was
// dispatched; blank input is ignored.
func (s *Session) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	id := s.timeline.AppendOptimistic(domain.UserText(text))
	s.dispatch(ctx, domain.ActionSend, id, func(ctx context.Context, cfg domain.AgentConfig) (*domain.Answer, error) {
		return s.backend.Send(ctx, text, cfg)
	}, nil)
	return true
}

// UploadText submits free text for ingestion.
func (s *Session) UploadText(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	id := s.timeline.AppendOptimistic(domain.UserText(text))
	s.dispatch(ctx, domain.ActionUploadText, id, func(ctx context.Context, cfg domain.AgentConfig) (*domain.Answer, error) {
		return s.backend.UploadText(ctx, text, cfg)
	}, nil)
	return true
}

// Scrape asks the backend to ingest a web page.
func (s *Session) Scrape(ctx context.Context, url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	id := s.timeline.AppendOptimistic(domain.UserText(ScrapeNotice(url)))
	s.dispatch(ctx, domain.ActionScrape, id, func(ctx context.Context, cfg domain.AgentConfig) (*domain.Answer, error) {
		return s.backend.Scrape(ctx, url, cfg)
	}, nil)
	return true
}

// UploadFile uploads a picked file. Upload status goes to the notifier.
func (s *Session) UploadFile(ctx context.Context, file domain.FileRef) bool {
	file.Name = strings.TrimSpace(file.Name)
	if file.IsZero() || file.Name == "" {
		return false
	}
	id := s.timeline.AppendOptimistic(domain.UserFile(file))

	token := ""
	if s.notifier != nil {
		token = s.notifier.Loading(NotifyUploading)
	}
	s.dispatch(ctx, domain.ActionUploadFile, id, func(ctx context.Context, cfg domain.AgentConfig) (*domain.Answer, error) {
		return s.backend.UploadFile(ctx, file, cfg)
	}, func(err error) {
		if s.notifier == nil {
			return
		}
		if err != nil {
			s.notifier.Error(token, NotifyFailed)
		} else {
			s.notifier.Success(token, NotifyUploaded)
		}
	})
	return true
}

// Submit dispatches the current draft of a text-based action and clears it.
func (s *Session) Submit(ctx context.Context, action domain.Action) bool {
	text := s.drafts.Get(action)
	s.drafts.Clear(action)
	switch action {
	case domain.ActionSend:
		return s.Send(ctx, text)
	case domain.ActionUploadText:
		return s.UploadText(ctx, text)
	case domain.ActionScrape:
		return s.Scrape(ctx, text)
	default:
		return false
	}
}

type call func(ctx context.Context, cfg domain.AgentConfig) (*domain.Answer, error)

// dispatch captures the configuration now and settles the action in the
// background. The caller's context only carries values: once dispatched an
// action always settles.
func (s *Session) dispatch(ctx context.Context, action domain.Action, optimisticID int64, fn call, done func(error)) {
	cfg := s.AgentConfig()
	actionID := uuid.NewString()

	s.wg.Add(1)
	s.inflight.Add(1)
	if s.metrics != nil {
		s.metrics.Started()
	}
	s.logger.Info("action dispatched", "action", action, "action_id", actionID, "entry", optimisticID)
	s.emit(bus.EventActionDispatched, map[string]any{
		"action_id": actionID,
		"action":    string(action),
		"entry":     optimisticID,
	})

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		ans, err := fn(ctx, cfg)
		if err == nil && ans == nil {
			err = errNoAnswer
		}
		s.settle(ctx, action, actionID, optimisticID, cfg, ans, err, time.Since(start))
		if done != nil {
			done(err)
		}
	}()
}

func (s *Session) settle(ctx context.Context, action domain.Action, actionID string, optimisticID int64,
	cfg domain.AgentConfig, ans *domain.Answer, err error, elapsed time.Duration) {

	var result domain.Message
	outcome := "ok"
	errText := ""
	if err != nil {
		outcome = "error"
		errText = err.Error()
		s.logger.Warn("action failed", "action", action, "action_id", actionID, "error", err)
		result = domain.AssistantText(failureText[action], nil, "")
	} else {
		result = domain.AssistantText(ans.Text, ans.Sources, ans.AnswerSource)
	}
	result.ReplyTo = optimisticID
	resultID := s.timeline.AppendResult(result)
	s.inflight.Add(-1)

	s.logger.Info("action settled",
		"action", action,
		"action_id", actionID,
		"outcome", outcome,
		"latency", elapsed,
	)
	if s.metrics != nil {
		s.metrics.Settled(string(action), outcome, elapsed)
	}
	if s.journal != nil {
		entry := journal.Entry{
			ActionID: actionID,
			Action:   string(action),
			Outcome:  outcome,
			Latency:  elapsed,
			Error:    errText,
			Config:   cfg.String(),
		}
		if ans != nil {
			entry.AnswerSource = ans.AnswerSource
		}
		if jerr := s.journal.Record(ctx, entry); jerr != nil {
			s.logger.Warn("journal write failed", "action_id", actionID, "error", jerr)
		}
	}
	s.emit(bus.EventActionSettled, map[string]any{
		"action_id": actionID,
		"action":    string(action),
		"outcome":   outcome,
		"entry":     resultID,
	})
}

func (s *Session) emit(eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(bus.Event{Type: eventType, Source: "session", Payload: payload})
}

// Run consumes intents published by channels until ctx is cancelled or the
// bus is closed.
func (s *Session) Run(ctx context.Context, intents domain.IntentBus) {
	s.logger.Info("session loop started", "config", s.AgentConfig().String())
	inbound := intents.Subscribe()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session loop stopping")
			return
		case in, ok := <-inbound:
			if !ok {
				s.logger.Info("intent channel closed, session loop stopping")
				return
			}
			if !s.Handle(ctx, in) {
				s.logger.Debug("intent ignored", "channel", in.Channel, "action", in.Action)
			}
		}
	}
}

// Handle performs one intent and reports whether it was dispatched.
func (s *Session) Handle(ctx context.Context, in domain.Intent) bool {
	switch in.Action {
	case domain.ActionSend:
		return s.Send(ctx, in.Text)
	case domain.ActionUploadText:
		return s.UploadText(ctx, in.Text)
	case domain.ActionScrape:
		return s.Scrape(ctx, in.Text)
	case domain.ActionUploadFile:
		return s.UploadFile(ctx, in.File)
	default:
		s.logger.Warn("unknown intent action", "action", in.Action, "channel", in.Channel)
		return false
	}
}
