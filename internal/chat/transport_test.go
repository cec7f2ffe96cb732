package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []ai.ChatRequest
	stream   func(ctx context.Context, req ai.ChatRequest) (<-chan string, <-chan error)
	complete func(ctx context.Context, req ai.ChatRequest) (string, error)
}

func (g *fakeGateway) Stream(ctx context.Context, req ai.ChatRequest) (<-chan string, <-chan error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.stream(ctx, req)
}

func (g *fakeGateway) Complete(ctx context.Context, req ai.ChatRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.complete(ctx, req)
}

func (g *fakeGateway) lastRequest(t *testing.T) ai.ChatRequest {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatalf("gateway was not called")
	}
	return g.requests[len(g.requests)-1]
}

// scripted emits fragments then ends with err.
func scripted(err error, fragments ...string) func(context.Context, ai.ChatRequest) (<-chan string, <-chan error) {
	return func(ctx context.Context, _ ai.ChatRequest) (<-chan string, <-chan error) {
		chunks := make(chan string)
		errs := make(chan error, 1)
		go func() {
			defer close(chunks)
			defer close(errs)
			for _, f := range fragments {
				select {
				case chunks <- f:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if err != nil {
				errs <- err
			}
		}()
		return chunks, errs
	}
}

// controlled emits whatever the test feeds it until end receives.
type controlled struct {
	feed chan string
	end  chan error
}

func newControlled() *controlled {
	return &controlled{feed: make(chan string), end: make(chan error, 1)}
}

func (c *controlled) stream(ctx context.Context, _ ai.ChatRequest) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case err := <-c.end:
				if err != nil {
					errs <- err
				}
				return
			case f := <-c.feed:
				select {
				case chunks <- f:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()
	return chunks, errs
}

type memRecorder struct {
	mu   sync.Mutex
	runs []runlog.Run
}

func (r *memRecorder) Record(ctx context.Context, run runlog.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func newTestTransport(t *testing.T, gw Gateway, opts ...TransportOption) (*Transport, *Store, string) {
	t.Helper()
	s := openTestStore(t, &memPersister{})
	id := s.ActiveID()
	if _, err := s.UpdateSession(context.Background(), id, SessionPatch{Credential: strPtr("sk-test")}); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	return NewTransport(s, gw, opts...), s, id
}

func waitResult(t *testing.T, p *Pending) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("request did not finish: %v", err)
	}
	return res
}

func TestSubmit_StreamsFragmentsInOrder(t *testing.T) {
	gw := &fakeGateway{stream: scripted(nil, "Hel", "lo, ", "world!")}
	tr, s, id := newTestTransport(t, gw)

	var (
		mu      sync.Mutex
		buffers []string
		states  []State
	)
	p, err := tr.Submit(context.Background(), id, "Say hello", SubmitOptions{
		Stream: true,
		OnFragment: func(delta, buffer string) {
			mu.Lock()
			buffers = append(buffers, buffer)
			mu.Unlock()
		},
		OnState: func(st State) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, p)

	if res.State != StateCompleted || res.Message == nil || res.Message.Content != "Hello, world!" {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []string{"Hel", "Hello, ", "Hello, world!"}
	mu.Lock()
	defer mu.Unlock()
	if len(buffers) != len(want) {
		t.Fatalf("buffers = %q, want %q", buffers, want)
	}
	for i := range want {
		if buffers[i] != want[i] {
			t.Fatalf("buffers = %q, want %q", buffers, want)
		}
	}
	wantStates := []State{StateSending, StateStreaming, StateCompleted}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("states = %v, want %v", states, wantStates)
		}
	}

	sess, _ := s.Get(id)
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %+v", sess.Messages)
	}
	if sess.Messages[0].Role != ai.RoleUser || sess.Messages[0].Content != "Say hello" {
		t.Fatalf("unexpected user message: %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != ai.RoleAssistant || sess.Messages[1].Content != "Hello, world!" {
		t.Fatalf("unexpected assistant message: %+v", sess.Messages[1])
	}
	if sess.Title != "Say hello" {
		t.Fatalf("title not derived from first prompt: %q", sess.Title)
	}
	if _, busy := tr.Pending(id); busy {
		t.Fatalf("session still marked in flight")
	}
}

func TestSubmit_RequestCarriesHistoryAndNewTurn(t *testing.T) {
	gw := &fakeGateway{stream: scripted(nil, "ok")}
	tr, s, id := newTestTransport(t, gw)
	ctx := context.Background()
	s.AppendMessage(ctx, id, Message{Role: ai.RoleUser, Content: "earlier"})
	s.AppendMessage(ctx, id, Message{Role: ai.RoleAssistant, Content: "reply"})

	p, err := tr.Submit(ctx, id, "now", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitResult(t, p)

	req := gw.lastRequest(t)
	if len(req.Messages) != 3 || req.Messages[2].Content != "now" {
		t.Fatalf("unexpected request messages: %+v", req.Messages)
	}
	if req.Credential != "sk-test" {
		t.Fatalf("credential not forwarded")
	}
}

func TestSubmit_RejectsSecondRequestForSession(t *testing.T) {
	c := newControlled()
	gw := &fakeGateway{stream: c.stream}
	tr, s, id := newTestTransport(t, gw)
	ctx := context.Background()

	p, err := tr.Submit(ctx, id, "first", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := tr.Submit(ctx, id, "second", SubmitOptions{Stream: true}); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
	sess, _ := s.Get(id)
	if len(sess.Messages) != 1 {
		t.Fatalf("rejected submit appended a message: %+v", sess.Messages)
	}

	c.feed <- "done"
	c.end <- nil
	waitResult(t, p)

	// A different session is never blocked.
	other, _ := s.CreateSession(ctx, &SessionPatch{Credential: strPtr("sk-other")})
	gw.stream = scripted(nil, "x")
	p2, err := tr.Submit(ctx, other.ID, "parallel", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit on other session: %v", err)
	}
	waitResult(t, p2)

	p3, err := tr.Submit(ctx, id, "after", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit after completion: %v", err)
	}
	waitResult(t, p3)
}

func TestSubmit_ValidationAppendsNothing(t *testing.T) {
	gw := &fakeGateway{stream: scripted(nil, "unused")}
	tr, s, id := newTestTransport(t, gw)
	ctx := context.Background()

	if _, err := tr.Submit(ctx, id, "   ", SubmitOptions{Stream: true}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := tr.Submit(ctx, "missing", "hi", SubmitOptions{Stream: true}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	noKey, _ := s.CreateSession(ctx, nil)
	if _, err := tr.Submit(ctx, noKey.ID, "hi", SubmitOptions{Stream: true}); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	for _, sess := range s.List() {
		if len(sess.Messages) != 0 {
			t.Fatalf("validation failure appended to %s: %+v", sess.ID, sess.Messages)
		}
	}
	if len(gw.requests) != 0 {
		t.Fatalf("gateway called despite validation failure")
	}
}

func TestCancel_DropsPartialTextAndFreesSession(t *testing.T) {
	c := newControlled()
	gw := &fakeGateway{stream: c.stream}
	rec := &memRecorder{}
	tr, s, id := newTestTransport(t, gw, WithRunRecorder(rec))
	ctx := context.Background()

	got := make(chan string, 4)
	var lateFragments int
	var mu sync.Mutex
	p, err := tr.Submit(ctx, id, "long answer please", SubmitOptions{
		Stream: true,
		OnFragment: func(delta, buffer string) {
			mu.Lock()
			lateFragments++
			mu.Unlock()
			got <- buffer
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	c.feed <- "partial"
	if b := <-got; b != "partial" {
		t.Fatalf("unexpected buffer %q", b)
	}

	if !tr.Cancel(id) {
		t.Fatalf("cancel should report true for an in-flight request")
	}
	if p.Cancel() {
		t.Fatalf("second cancel should be a no-op")
	}
	if p.State() != StateCancelled || p.Buffer() != "" {
		t.Fatalf("cancel left state=%s buffer=%q", p.State(), p.Buffer())
	}
	if _, busy := tr.Pending(id); busy {
		t.Fatalf("session should be free right after cancel")
	}

	// A fragment arriving after cancellation is ignored.
	p.accept("late")
	mu.Lock()
	if lateFragments != 1 {
		t.Fatalf("fragment after cancel reached the callback")
	}
	mu.Unlock()

	res := waitResult(t, p)
	if res.State != StateCancelled || res.Message != nil {
		t.Fatalf("unexpected result after cancel: %+v", res)
	}
	sess, _ := s.Get(id)
	if len(sess.Messages) != 1 || sess.Messages[0].Role != ai.RoleUser {
		t.Fatalf("cancel should leave only the user message: %+v", sess.Messages)
	}

	rec.mu.Lock()
	if len(rec.runs) != 1 || rec.runs[0].Outcome != runlog.OutcomeCancelled {
		t.Fatalf("unexpected recorded runs: %+v", rec.runs)
	}
	rec.mu.Unlock()

	if tr.Cancel(id) {
		t.Fatalf("cancel on an idle session should report false")
	}
}

func TestCancel_ParentContextCancels(t *testing.T) {
	c := newControlled()
	gw := &fakeGateway{stream: c.stream}
	tr, s, id := newTestTransport(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := tr.Submit(ctx, id, "hi", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()

	res := waitResult(t, p)
	if res.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	sess, _ := s.Get(id)
	if len(sess.Messages) != 1 {
		t.Fatalf("cancelled request committed a reply: %+v", sess.Messages)
	}
}

func TestSubmit_FailureRecordsErrorMessage(t *testing.T) {
	gw := &fakeGateway{stream: scripted(&ai.StatusError{Provider: "openai", Status: 401, Message: "Incorrect API key provided"})}
	rec := &memRecorder{}
	tr, s, id := newTestTransport(t, gw, WithRunRecorder(rec))

	p, err := tr.Submit(context.Background(), id, "hi", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, p)
	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	var se *ai.StatusError
	if !errors.As(res.Err, &se) || se.Status != 401 {
		t.Fatalf("result should carry the status error: %v", res.Err)
	}

	sess, _ := s.Get(id)
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user + error message, got %+v", sess.Messages)
	}
	if got := sess.Messages[1].Content; got != "Error: Incorrect API key provided" {
		t.Fatalf("error message = %q", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.runs) != 1 || rec.runs[0].Outcome != runlog.OutcomeFailed || rec.runs[0].Error == nil {
		t.Fatalf("failure not recorded: %+v", rec.runs)
	}
}

func TestSubmit_MidStreamErrorDiscardsPartialText(t *testing.T) {
	gw := &fakeGateway{stream: scripted(errors.New("connection reset"), "partial ", "answer")}
	tr, s, id := newTestTransport(t, gw)

	p, err := tr.Submit(context.Background(), id, "hi", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, p)
	if res.State != StateFailed || p.Buffer() != "" {
		t.Fatalf("unexpected result: %+v buffer=%q", res, p.Buffer())
	}

	sess, _ := s.Get(id)
	if len(sess.Messages) != 2 || sess.Messages[1].Content != "Error: connection reset" {
		t.Fatalf("unexpected messages: %+v", sess.Messages)
	}
}

func TestSubmit_EmptyErrorUsesFallbackText(t *testing.T) {
	gw := &fakeGateway{stream: scripted(&ai.StatusError{Status: 500})}
	tr, s, id := newTestTransport(t, gw)

	p, err := tr.Submit(context.Background(), id, "hi", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitResult(t, p)

	sess, _ := s.Get(id)
	if got := sess.Messages[1].Content; got != "Error: Failed to get response" {
		t.Fatalf("error message = %q", got)
	}
}

func TestSubmit_NonStreamingCommitsOnce(t *testing.T) {
	gw := &fakeGateway{complete: func(ctx context.Context, req ai.ChatRequest) (string, error) {
		return "whole answer", nil
	}}
	rec := &memRecorder{}
	tr, s, id := newTestTransport(t, gw, WithRunRecorder(rec))

	fragments := 0
	p, err := tr.Submit(context.Background(), id, "hi", SubmitOptions{
		Stream:     false,
		OnFragment: func(string, string) { fragments++ },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, p)
	if res.State != StateCompleted || res.Message.Content != "whole answer" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if fragments != 0 {
		t.Fatalf("non-streaming request delivered fragments")
	}

	sess, _ := s.Get(id)
	if len(sess.Messages) != 2 || sess.Messages[1].Content != "whole answer" {
		t.Fatalf("unexpected messages: %+v", sess.Messages)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	run := rec.runs[0]
	if run.Mode != runlog.ModeComplete || run.Outcome != runlog.OutcomeCompleted || run.ResponseChars != len("whole answer") {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.ModelID != "gpt-4o" || run.Provider != "openai" || run.ID != p.RunID {
		t.Fatalf("run record lost request identity: %+v", run)
	}
}

func TestSubmit_SessionDeletedMidFlight(t *testing.T) {
	c := newControlled()
	gw := &fakeGateway{stream: c.stream}
	tr, s, id := newTestTransport(t, gw)
	ctx := context.Background()

	p, err := tr.Submit(ctx, id, "hi", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	c.feed <- "answer"
	c.end <- nil

	res := waitResult(t, p)
	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %s", res.State)
	}
	if _, err := s.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session came back: %v", err)
	}
}

func TestClearSession_RejectedWhileInFlight(t *testing.T) {
	ctl := newControlled()
	tr, s, id := newTestTransport(t, &fakeGateway{stream: ctl.stream})
	ctx := context.Background()

	p, err := tr.Submit(ctx, id, "hello", SubmitOptions{Stream: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := tr.ClearSession(ctx, id); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}

	ctl.feed <- "hi"
	ctl.end <- nil
	if res := waitResult(t, p); res.State != StateCompleted {
		t.Fatalf("unexpected result: %+v", res)
	}

	sess, err := tr.ClearSession(ctx, id)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(sess.Messages) != 0 || sess.Title != DefaultTitle {
		t.Fatalf("session not cleared: %+v", sess)
	}
	if got, _ := s.Get(id); len(got.Messages) != 0 {
		t.Fatalf("store not cleared: %+v", got.Messages)
	}
}

func TestClearSession_NeverLeavesOrphanReply(t *testing.T) {
	gw := &fakeGateway{stream: scripted(nil, "ok")}
	tr, s, id := newTestTransport(t, gw)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		var p *Pending
		wg.Add(2)
		go func() {
			defer wg.Done()
			p, _ = tr.Submit(ctx, id, "ping", SubmitOptions{Stream: true})
		}()
		go func() {
			defer wg.Done()
			_, _ = tr.ClearSession(ctx, id)
		}()
		wg.Wait()
		if p != nil {
			waitResult(t, p)
		}

		sess, err := s.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(sess.Messages) > 0 && sess.Messages[0].Role != ai.RoleUser {
			t.Fatalf("reply committed into cleared history: %+v", sess.Messages)
		}
		if _, err := tr.ClearSession(ctx, id); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
}
