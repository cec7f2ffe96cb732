package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/common"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
)

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Gateway is the provider-facing side of the transport. Stream follows the
// StreamProvider contract: both channels close when the call ends and at
// most one error is sent.
type Gateway interface {
	Stream(ctx context.Context, req ai.ChatRequest) (<-chan string, <-chan error)
	Complete(ctx context.Context, req ai.ChatRequest) (string, error)
}

type SubmitOptions struct {
	Stream bool
	// OnFragment runs on the request goroutine, once per fragment, in
	// arrival order. buffer is everything received so far.
	OnFragment func(delta, buffer string)
	// OnState runs on the request goroutine for every state entered.
	OnState func(State)
}

type Result struct {
	State State
	// Message is the assistant message committed to the session, nil when
	// the request was cancelled.
	Message *Message
	Err     error
}

// Pending is one in-flight request.
type Pending struct {
	SessionID string
	RunID     string

	cancel  context.CancelFunc
	release func()
	opts    SubmitOptions

	mu        sync.Mutex
	state     State
	buf       strings.Builder
	fragments int
	cancelled bool
	result    Result

	done chan struct{}
}

func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Buffer returns the text received so far. It is empty once the request was
// cancelled or failed.
func (p *Pending) Buffer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request reaches a terminal state or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel aborts the request. The session is free for a new submit as soon as
// Cancel returns; fragments still in flight are dropped. It reports whether
// this call did the cancelling.
func (p *Pending) Cancel() bool {
	p.mu.Lock()
	if p.cancelled || p.state.Terminal() {
		p.mu.Unlock()
		return false
	}
	p.cancelled = true
	p.state = StateCancelled
	p.buf.Reset()
	p.mu.Unlock()

	p.cancel()
	p.release()
	return true
}

func (p *Pending) notify(s State) {
	if p.opts.OnState != nil {
		p.opts.OnState(s)
	}
}

func (p *Pending) accept(delta string) {
	if delta == "" {
		return
	}
	p.mu.Lock()
	if p.cancelled || p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	p.buf.WriteString(delta)
	p.fragments++
	first := p.state == StateSending
	if first {
		p.state = StateStreaming
	}
	buffer := p.buf.String()
	p.mu.Unlock()

	if first {
		p.notify(StateStreaming)
	}
	if p.opts.OnFragment != nil {
		p.opts.OnFragment(delta, buffer)
	}
}

// Transport runs submitted prompts against the gateway, at most one per
// session, and commits each outcome to the Store.
type Transport struct {
	store    *Store
	gateway  Gateway
	recorder runlog.Recorder

	mu      sync.Mutex
	pending map[string]*Pending
}

type TransportOption func(*Transport)

// WithRunRecorder hands every finished request to r.
func WithRunRecorder(r runlog.Recorder) TransportOption {
	return func(t *Transport) { t.recorder = r }
}

func NewTransport(store *Store, gw Gateway, opts ...TransportOption) *Transport {
	t := &Transport{
		store:   store,
		gateway: gw,
		pending: make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit appends text as a user message and starts the request in the
// background. Nothing is appended when an error is returned.
func (t *Transport) Submit(ctx context.Context, sessionID, text string, opts SubmitOptions) (*Pending, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.pending[sessionID]; busy {
		return nil, ErrRequestInFlight
	}
	sess, err := t.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Credential == "" {
		return nil, ErrMissingCredential
	}
	runID, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	req := BuildRequest(t.store.Catalog(), sess.Messages, text, sess)
	if _, err := t.store.AppendMessage(ctx, sessionID, Message{Role: ai.RoleUser, Content: text}); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p := &Pending{
		SessionID: sessionID,
		RunID:     runID,
		cancel:    cancel,
		opts:      opts,
		state:     StateSending,
		done:      make(chan struct{}),
	}
	p.release = func() { t.release(p) }
	t.pending[sessionID] = p

	go t.run(runCtx, p, req)
	return p, nil
}

// Pending returns the in-flight request of a session, if any.
func (t *Transport) Pending(sessionID string) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[sessionID]
	return p, ok
}

// Cancel aborts the in-flight request of a session. Cancelling an idle
// session is a no-op and reports false.
func (t *Transport) Cancel(sessionID string) bool {
	p, ok := t.Pending(sessionID)
	if !ok {
		return false
	}
	return p.Cancel()
}

// ClearSession empties a session's history unless a request is in flight
// for it. Holding t.mu keeps a Submit from starting between the check and
// the clear.
func (t *Transport) ClearSession(ctx context.Context, sessionID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.pending[sessionID]; busy {
		return Session{}, ErrRequestInFlight
	}
	return t.store.ClearSession(ctx, sessionID)
}

func (t *Transport) release(p *Pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.pending[p.SessionID]; ok && cur == p {
		delete(t.pending, p.SessionID)
	}
}

func (t *Transport) run(ctx context.Context, p *Pending, req ai.ChatRequest) {
	defer p.cancel()
	started := time.Now()
	p.notify(StateSending)

	var (
		text string
		err  error
	)
	if p.opts.Stream {
		chunks, errs := t.gateway.Stream(ctx, req)
		for delta := range chunks {
			p.accept(delta)
		}
		err = <-errs
		text = p.Buffer()
	} else {
		text, err = t.gateway.Complete(ctx, req)
	}

	t.finish(ctx, p, req, text, err, started)
}

func (t *Transport) finish(ctx context.Context, p *Pending, req ai.ChatRequest, text string, callErr error, started time.Time) {
	var res Result

	p.mu.Lock()
	switch {
	case p.cancelled || (callErr != nil && ctx.Err() != nil):
		p.cancelled = true
		p.state = StateCancelled
		p.buf.Reset()
		res = Result{State: StateCancelled, Err: context.Canceled}
	case callErr != nil:
		p.state = StateFailed
		p.buf.Reset()
		msg := Message{Role: ai.RoleAssistant, Content: failureText(callErr)}
		res = Result{State: StateFailed, Message: &msg, Err: callErr}
	default:
		p.state = StateCompleted
		msg := Message{Role: ai.RoleAssistant, Content: text}
		res = Result{State: StateCompleted, Message: &msg}
	}
	fragments := p.fragments
	p.mu.Unlock()

	// The reply lands before the session is released so a follow-up submit
	// sees it in its history.
	if res.Message != nil {
		if _, err := t.store.AppendMessage(context.WithoutCancel(ctx), p.SessionID, *res.Message); err != nil {
			log.Printf("[transport] commit reply failed session_id=%s run_id=%s err=%v", p.SessionID, p.RunID, err)
		}
	}
	t.release(p)
	p.notify(res.State)

	if res.State == StateFailed {
		log.Printf("[transport] request failed session_id=%s run_id=%s model=%s err=%v", p.SessionID, p.RunID, req.Model.ID, callErr)
	}
	t.record(ctx, p, req, res, fragments, started)

	p.mu.Lock()
	p.result = res
	p.mu.Unlock()
	close(p.done)
}

func (t *Transport) record(ctx context.Context, p *Pending, req ai.ChatRequest, res Result, fragments int, started time.Time) {
	if t.recorder == nil {
		return
	}

	run := runlog.Run{
		ID:          p.RunID,
		SessionID:   p.SessionID,
		ModelID:     req.Model.ID,
		Provider:    string(req.Model.Provider),
		Mode:        runlog.ModeComplete,
		Outcome:     runlog.Outcome(res.State),
		PromptChars: promptChars(req),
		Fragments:   fragments,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	if p.opts.Stream {
		run.Mode = runlog.ModeStream
	}
	switch res.State {
	case StateCompleted:
		run.ResponseChars = utf8.RuneCountInString(res.Message.Content)
	case StateFailed:
		msg := res.Err.Error()
		run.Error = &msg
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.recorder.Record(rctx, run); err != nil {
		log.Printf("[transport] record run failed run_id=%s err=%v", run.ID, err)
	}
}

func promptChars(req ai.ChatRequest) int {
	n := utf8.RuneCountInString(req.SystemPrompt)
	for _, m := range req.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

// failureText is the assistant message recorded for a failed request.
func failureText(err error) string {
	msg := err.Error()
	var se *ai.StatusError
	if errors.As(err, &se) {
		msg = se.Message
	}
	if msg == "" {
		msg = "Failed to get response"
	}
	return "Error: " + msg
}
