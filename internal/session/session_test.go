package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"ragdesk/internal/bus"
	"ragdesk/internal/domain"
	"ragdesk/internal/journal"
	"ragdesk/internal/metrics"
	"ragdesk/internal/timeline"
)

func testSessionLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type backendCall struct {
	action domain.Action
	input  string
	cfg    domain.AgentConfig
}

// fakeBackend answers every action with "<action>: <input>". An action whose
// gate is set blocks until the gate is closed; an action in fail errors and
// an action in empty returns neither an answer nor an error.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []backendCall
	gates  map[domain.Action]chan struct{}
	fail   map[domain.Action]bool
	empty  map[domain.Action]bool
	answer *domain.Answer
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gates: map[domain.Action]chan struct{}{},
		fail:  map[domain.Action]bool{},
		empty: map[domain.Action]bool{},
	}
}

func (f *fakeBackend) do(ctx context.Context, action domain.Action, input string, cfg domain.AgentConfig) (*domain.Answer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, backendCall{action, input, cfg})
	gate := f.gates[action]
	fail := f.fail[action]
	empty := f.empty[action]
	answer := f.answer
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("backend down")
	}
	if empty {
		return nil, nil
	}
	if answer != nil {
		return answer, nil
	}
	return &domain.Answer{Text: string(action) + ": " + input, Sources: []domain.Source{}}, nil
}

func (f *fakeBackend) Send(ctx context.Context, text string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return f.do(ctx, domain.ActionSend, text, cfg)
}

func (f *fakeBackend) UploadFile(ctx context.Context, file domain.FileRef, cfg domain.AgentConfig) (*domain.Answer, error) {
	return f.do(ctx, domain.ActionUploadFile, file.Name, cfg)
}

func (f *fakeBackend) UploadText(ctx context.Context, text string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return f.do(ctx, domain.ActionUploadText, text, cfg)
}

func (f *fakeBackend) Scrape(ctx context.Context, url string, cfg domain.AgentConfig) (*domain.Answer, error) {
	return f.do(ctx, domain.ActionScrape, url, cfg)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Loading(msg string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "loading:"+msg)
	return "tok"
}

func (n *fakeNotifier) Success(tok, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "success:"+tok+":"+msg)
}

func (n *fakeNotifier) Error(tok, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "error:"+tok+":"+msg)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func newTestSession(b domain.Backend, n domain.Notifier) *Session {
	return New(Config{Backend: b, Notifier: n, Logger: testSessionLogger()})
}

func TestSend_OptimisticThenResult(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b, nil)

	if !s.Send(context.Background(), "  hello  ") {
		t.Fatal("expected dispatch")
	}
	s.Wait()

	entries := s.Timeline().Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].IsUser() || entries[0].Content != "hello" {
		t.Fatalf("unexpected optimistic entry %+v", entries[0])
	}
	if entries[1].IsUser() || entries[1].Content != "send: hello" {
		t.Fatalf("unexpected result entry %+v", entries[1])
	}
	if entries[1].ReplyTo != entries[0].ID {
		t.Fatalf("result should reference optimistic entry")
	}
}

func TestOptimisticEntryPrecedesDispatch(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.gates[domain.ActionSend] = gate
	s := newTestSession(b, nil)

	s.Send(context.Background(), "question")
	if n := s.Timeline().Len(); n != 1 {
		t.Fatalf("optimistic entry should be visible before the response, got %d entries", n)
	}
	if s.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", s.InFlight())
	}
	close(gate)
	s.Wait()
	if s.Timeline().Len() != 2 || s.InFlight() != 0 {
		t.Fatalf("expected settled action, got len=%d inflight=%d", s.Timeline().Len(), s.InFlight())
	}
}

func TestEmptyInputIsNoOp(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b, nil)
	ctx := context.Background()

	if s.Send(ctx, "   ") || s.UploadText(ctx, "") || s.Scrape(ctx, "\n\t") {
		t.Fatal("blank input must not dispatch")
	}
	if s.UploadFile(ctx, domain.FileRef{}) {
		t.Fatal("missing file must not dispatch")
	}
	s.Wait()
	if s.Timeline().Len() != 0 || b.callCount() != 0 {
		t.Fatalf("expected no entries and no calls, got %d entries %d calls", s.Timeline().Len(), b.callCount())
	}
}

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		action domain.Action
		run    func(s *Session) bool
		want   string
	}{
		{domain.ActionSend, func(s *Session) bool { return s.Send(context.Background(), "q") }, ErrSendText},
		{domain.ActionUploadText, func(s *Session) bool { return s.UploadText(context.Background(), "t") }, ErrUploadTextText},
		{domain.ActionScrape, func(s *Session) bool { return s.Scrape(context.Background(), "https://x") }, ErrScrapeText},
		{domain.ActionUploadFile, func(s *Session) bool {
			return s.UploadFile(context.Background(), domain.FileRef{Name: "a.pdf", Data: []byte("x")})
		}, ErrUploadFileText},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			b := newFakeBackend()
			b.fail[tt.action] = true
			s := newTestSession(b, nil)

			if !tt.run(s) {
				t.Fatal("expected dispatch")
			}
			s.Wait()

			entries := s.Timeline().Snapshot()
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}
			res := entries[1]
			if res.Content != tt.want {
				t.Errorf("content = %q, want %q", res.Content, tt.want)
			}
			if len(res.Sources) != 0 || res.AnswerSource != "" {
				t.Errorf("failure entry must carry no sources or provenance: %+v", res)
			}
		})
	}
}

func TestScrape_OptimisticNotice(t *testing.T) {
	s := newTestSession(newFakeBackend(), nil)
	s.Scrape(context.Background(), "https://example.com")
	s.Wait()
	first := s.Timeline().Snapshot()[0]
	if first.Content != "Scraping site: https://example.com..." {
		t.Fatalf("unexpected notice %q", first.Content)
	}
}

func TestUploadFile_NotifiesAndRecordsKind(t *testing.T) {
	b := newFakeBackend()
	n := &fakeNotifier{}
	s := newTestSession(b, n)

	s.UploadFile(context.Background(), domain.FileRef{Name: "clip.MP4", Data: []byte("v")})
	s.Wait()

	entries := s.Timeline().Snapshot()
	if entries[0].Kind != domain.KindVideo || entries[0].FileName != "clip.MP4" {
		t.Fatalf("unexpected optimistic entry %+v", entries[0])
	}
	want := []string{"loading:" + NotifyUploading, "success:tok:" + NotifyUploaded}
	if len(n.events) != 2 || n.events[0] != want[0] || n.events[1] != want[1] {
		t.Fatalf("unexpected notifications %v", n.events)
	}

	b.fail[domain.ActionUploadFile] = true
	s.UploadFile(context.Background(), domain.FileRef{Name: "doc.pdf", Data: []byte("d")})
	s.Wait()
	if last := n.events[len(n.events)-1]; last != "error:tok:"+NotifyFailed {
		t.Fatalf("expected failure notification, got %s", last)
	}
	if s.Timeline().Snapshot()[2].Kind != domain.KindFile {
		t.Fatal("pdf should be recorded as a file entry")
	}
}

func TestConfigCapturedAtDispatch(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.gates[domain.ActionSend] = gate
	s := newTestSession(b, nil)

	s.Send(context.Background(), "first")
	if _, err := s.SetConfigField("vectordb", "milvus"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	close(gate)
	s.Send(context.Background(), "second")
	s.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	got := map[string]domain.RetrievalBackend{}
	for _, c := range b.calls {
		got[c.input] = c.cfg.RetrievalBackend
	}
	if got["first"] != domain.RetrievalChroma {
		t.Fatalf("first action should keep chroma, got %s", got["first"])
	}
	if got["second"] != domain.RetrievalMilvus {
		t.Fatalf("second action should use milvus, got %s", got["second"])
	}
}

func TestSetConfigField_Invalid(t *testing.T) {
	s := newTestSession(newFakeBackend(), nil)
	if _, err := s.SetConfigField("vectordb", "pinecone"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := s.SetConfigField("nope", "x"); err == nil {
		t.Fatal("expected unknown field error")
	}
	if s.AgentConfig() != domain.DefaultAgentConfig() {
		t.Fatal("config must be unchanged after a rejected update")
	}
}

func TestConcurrentActions_SlowScrapeFastText(t *testing.T) {
	b := newFakeBackend()
	slow := make(chan struct{})
	b.gates[domain.ActionScrape] = slow
	s := newTestSession(b, nil)
	ctx := context.Background()

	s.Scrape(ctx, "https://slow.example")
	s.UploadText(ctx, "fast text")

	deadline := time.After(2 * time.Second)
	for s.Timeline().Len() < 3 {
		select {
		case <-deadline:
			t.Fatal("fast action did not settle while scrape was in flight")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(slow)
	s.Wait()

	entries := s.Timeline().Snapshot()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Content != ScrapeNotice("https://slow.example") || entries[1].Content != "fast text" {
		t.Fatalf("optimistic entries out of submission order: %q, %q", entries[0].Content, entries[1].Content)
	}
	if entries[2].ReplyTo != entries[1].ID || entries[3].ReplyTo != entries[0].ID {
		t.Fatal("results should settle in completion order, one per action")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Fatal("ids must be strictly increasing")
		}
	}
}

func TestManyConcurrentSends(t *testing.T) {
	s := newTestSession(newFakeBackend(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Send(context.Background(), "q")
		}()
	}
	wg.Wait()
	s.Wait()

	entries := s.Timeline().Snapshot()
	if len(entries) != 40 {
		t.Fatalf("expected 40 entries, got %d", len(entries))
	}
	replies := map[int64]int{}
	for _, e := range entries {
		if !e.IsUser() {
			replies[e.ReplyTo]++
		}
	}
	for _, e := range entries {
		if e.IsUser() && replies[e.ID] != 1 {
			t.Fatalf("entry %d settled %d times", e.ID, replies[e.ID])
		}
	}
}

func TestCancelledContextStillSettles(t *testing.T) {
	b := newFakeBackend()
	gate := make(chan struct{})
	b.gates[domain.ActionSend] = gate
	s := newTestSession(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Send(ctx, "q")
	cancel()
	close(gate)
	s.Wait()
	if s.Timeline().Len() != 2 {
		t.Fatal("dispatched action must settle after caller cancellation")
	}
}

func TestSuccessCarriesSourcesAndProvenance(t *testing.T) {
	b := newFakeBackend()
	b.answer = &domain.Answer{
		Text:         "answer",
		Sources:      []domain.Source{{Name: "doc.pdf", Excerpt: "..."}},
		AnswerSource: "vectorstore",
	}
	s := newTestSession(b, nil)
	s.Send(context.Background(), "q")
	s.Wait()

	res, ok := s.Timeline().LastAssistant()
	if !ok || res.AnswerSource != "vectorstore" || len(res.Sources) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestJournalMetricsAndEvents(t *testing.T) {
	b := newFakeBackend()
	b.fail[domain.ActionScrape] = true
	rec := &fakeRecorder{}
	reg := metrics.NewCollector()
	d := metrics.NewDispatch(reg)
	events := bus.NewEventBus(testSessionLogger())

	var mu sync.Mutex
	var settled []string
	events.On(bus.EventActionSettled, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, e.Payload["outcome"].(string))
	})

	s := New(Config{
		Timeline: timeline.New(events),
		Backend:  b,
		Events:   events,
		Journal:  rec,
		Metrics:  d,
		Logger:   testSessionLogger(),
	})
	s.Send(context.Background(), "q")
	s.Wait()
	s.Scrape(context.Background(), "https://x")
	s.Wait()

	if len(rec.entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(rec.entries))
	}
	if rec.entries[0].Outcome != "ok" || rec.entries[1].Outcome != "error" || rec.entries[1].Error == "" {
		t.Fatalf("unexpected journal entries %+v", rec.entries)
	}
	if rec.entries[0].ActionID == "" || rec.entries[0].ActionID == rec.entries[1].ActionID {
		t.Fatal("action ids must be unique and non-empty")
	}
	if d.Total("send", "ok").Value() != 1 || d.Total("scrape", "error").Value() != 1 || d.Inflight.Value() != 0 {
		t.Fatal("metrics not updated")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(settled) != 2 || settled[0] != "ok" || settled[1] != "error" {
		t.Fatalf("unexpected settled events %v", settled)
	}
}

func TestSubmitUsesAndClearsDraft(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b, nil)
	s.Drafts().Append(domain.ActionUploadText, "line one")
	s.Drafts().Append(domain.ActionUploadText, "line two")

	if !s.Submit(context.Background(), domain.ActionUploadText) {
		t.Fatal("expected dispatch")
	}
	if s.Drafts().Get(domain.ActionUploadText) != "" {
		t.Fatal("draft should be cleared on submit")
	}
	s.Wait()
	if got := s.Timeline().Snapshot()[0].Content; got != "line one\nline two" {
		t.Fatalf("unexpected content %q", got)
	}
	if s.Submit(context.Background(), domain.ActionUploadText) {
		t.Fatal("empty draft must not dispatch")
	}
}

func TestEmptyAnswer_SettlesAsFailureEverywhere(t *testing.T) {
	b := newFakeBackend()
	b.empty[domain.ActionUploadFile] = true
	n := &fakeNotifier{}
	rec := &fakeRecorder{}
	s := New(Config{Backend: b, Notifier: n, Journal: rec, Logger: testSessionLogger()})

	s.UploadFile(context.Background(), domain.FileRef{Name: "a.pdf", Data: []byte("x")})
	s.Wait()

	entries := s.Timeline().Snapshot()
	if len(entries) != 2 || entries[1].Content != ErrUploadFileText {
		t.Fatalf("unexpected timeline %+v", entries)
	}
	n.mu.Lock()
	last := n.events[len(n.events)-1]
	n.mu.Unlock()
	if last != "error:tok:"+NotifyFailed {
		t.Fatalf("notifier must agree with the timeline, got %s", last)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != "error" || rec.entries[0].Error == "" {
		t.Fatalf("unexpected journal entries %+v", rec.entries)
	}
}

func TestSend_NotBlockedBySlowSubscriber(t *testing.T) {
	events := bus.NewEventBus(testSessionLogger())
	release := make(chan struct{})
	events.On(bus.EventTimelineAppended, func(bus.Event) { <-release })

	s := New(Config{
		Timeline: timeline.New(events),
		Backend:  newFakeBackend(),
		Events:   events,
		Logger:   testSessionLogger(),
	})

	s.Send(context.Background(), "first")
	deadline := time.After(2 * time.Second)
	for s.Timeline().Len() < 2 {
		select {
		case <-deadline:
			close(release)
			t.Fatal("first send did not settle while a subscriber was stuck")
		case <-time.After(5 * time.Millisecond):
		}
	}

	returned := make(chan bool, 1)
	go func() { returned <- s.Send(context.Background(), "second") }()
	select {
	case ok := <-returned:
		if !ok {
			t.Fatal("expected dispatch")
		}
	case <-time.After(200 * time.Millisecond):
		close(release)
		t.Fatal("send blocked on a slow subscriber")
	}

	close(release)
	s.Wait()
	if s.Timeline().Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", s.Timeline().Len())
	}
}

func TestDirectActionLeavesDraftsAlone(t *testing.T) {
	s := newTestSession(newFakeBackend(), nil)
	s.Drafts().Append(domain.ActionUploadText, "next note")

	s.UploadText(context.Background(), "typed elsewhere")
	s.Wait()

	if got := s.Drafts().Get(domain.ActionUploadText); got != "next note" {
		t.Fatalf("draft overwritten by an unrelated action: %q", got)
	}
	if got := s.Timeline().Snapshot()[0].Content; got != "typed elsewhere" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestRun_HandlesIntents(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(b, nil)
	intents := bus.New(10, testSessionLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, intents)
		close(done)
	}()

	intents.Publish(domain.Intent{Channel: "cli", Action: domain.ActionSend, Text: "hi"})
	intents.Publish(domain.Intent{Channel: "cli", Action: domain.ActionUploadFile, File: domain.FileRef{Name: "a.txt", Data: []byte("a")}})

	deadline := time.After(2 * time.Second)
	for s.Timeline().Len() < 4 {
		select {
		case <-deadline:
			t.Fatalf("intents not handled, %d entries", s.Timeline().Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	s.Wait()
}
