package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/secret"
)

const titleMaxRunes = 30

// Persister stores the serialized session set as one opaque blob.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

type snapshot struct {
	Sessions []Session `json:"sessions"`
	ActiveID string    `json:"activeId"`
}

// Store owns every session and the active-session pointer. Each mutating
// command is applied to the in-memory set and then the whole set is written
// through the Persister before the command returns. Write failures are
// logged; the in-memory state stays authoritative.
type Store struct {
	mu        sync.Mutex
	catalog   *ai.Catalog
	persister Persister
	sealer    *secret.Sealer
	newID     func() string

	sessions []Session
	activeID string
}

type StoreOption func(*Store)

// WithSealer seals credentials in the persisted blob.
func WithSealer(s *secret.Sealer) StoreOption {
	return func(st *Store) { st.sealer = s }
}

func WithIDGenerator(f func() string) StoreOption {
	return func(st *Store) { st.newID = f }
}

// OpenStore loads the last persisted session set. A missing, corrupt or
// empty state is replaced by one default session, which becomes active.
func OpenStore(ctx context.Context, catalog *ai.Catalog, persister Persister, opts ...StoreOption) *Store {
	if catalog == nil {
		catalog = ai.DefaultCatalog()
	}
	s := &Store{
		catalog:   catalog,
		persister: persister,
		newID:     NewSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		if !errors.Is(err, ErrNoState) {
			log.Printf("[store] load failed, starting fresh err=%v", err)
		}
		s.sessions = nil
	}
	if len(s.sessions) == 0 {
		d := s.defaultSessionLocked()
		s.sessions = []Session{d}
		s.activeID = d.ID
	}
	if s.indexLocked(s.activeID) < 0 {
		s.activeID = s.sessions[0].ID
	}
	s.persistLocked(ctx)
	return s
}

func (s *Store) Catalog() *ai.Catalog {
	return s.catalog
}

func (s *Store) loadLocked(ctx context.Context) error {
	if s.persister == nil {
		return ErrNoState
	}
	blob, err := s.persister.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoState) {
			return err
		}
		return &PersistError{Op: "load", Err: err}
	}
	if len(blob) == 0 {
		return ErrNoState
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return &PersistError{Op: "decode", Err: err}
	}

	sessions := make([]Session, 0, len(snap.Sessions))
	for _, sess := range snap.Sessions {
		if sess.ID == "" {
			continue
		}
		cred, err := s.sealer.Open(sess.Credential)
		if err != nil {
			log.Printf("[store] credential unreadable, cleared session_id=%s err=%v", sess.ID, err)
			cred = ""
		}
		sess.Credential = cred
		if sess.Messages == nil {
			sess.Messages = []Message{}
		}
		if sess.ModelConfig.Headers == nil {
			sess.ModelConfig.Headers = []ai.Header{}
		}
		if !sess.Model.Provider.Valid() {
			sess.Model = s.catalog.Default()
		}
		sessions = append(sessions, sess)
	}
	s.sessions = sessions
	s.activeID = snap.ActiveID
	return nil
}

// persistLocked serializes the full session set. It must be called with
// s.mu held so writes land in command order.
func (s *Store) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	snap := snapshot{Sessions: make([]Session, 0, len(s.sessions)), ActiveID: s.activeID}
	for _, sess := range s.sessions {
		cred, err := s.sealer.Seal(sess.Credential)
		if err != nil {
			log.Printf("[store] seal credential failed session_id=%s err=%v", sess.ID, err)
			cred = ""
		}
		sess.Credential = cred
		snap.Sessions = append(snap.Sessions, sess)
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[store] %v", &PersistError{Op: "encode", Err: err})
		return
	}

	// Persistence outlives the caller's request.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.persister.Save(wctx, blob); err != nil {
		log.Printf("[store] %v", &PersistError{Op: "save", Err: err})
		return
	}
	if cost := time.Since(start); cost > 500*time.Millisecond {
		log.Printf("[store] slow persist bytes=%d cost=%s", len(blob), cost)
	}
}

func (s *Store) defaultSessionLocked() Session {
	return Session{
		ID:          s.newID(),
		Title:       DefaultTitle,
		Messages:    []Message{},
		Model:       s.catalog.Default(),
		ModelConfig: DefaultModelConfig(),
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// applyPatchLocked merges p into sess. It validates before touching sess so
// a rejected patch leaves the session as it was.
func (s *Store) applyPatchLocked(sess *Session, p *SessionPatch) error {
	if p == nil {
		return nil
	}
	var model *ai.ModelRef
	if p.ModelID != nil {
		m, ok := s.catalog.Lookup(*p.ModelID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModel, *p.ModelID)
		}
		model = &m.ModelRef
	}
	if p.ModelConfig != nil {
		if err := p.ModelConfig.Validate(); err != nil {
			return err
		}
	}

	if p.Title != nil {
		sess.Title = *p.Title
	}
	if p.Description != nil {
		sess.Description = *p.Description
	}
	if p.SystemPrompt != nil {
		sess.SystemPrompt = *p.SystemPrompt
	}
	if model != nil {
		sess.Model = *model
	}
	if p.ModelConfig != nil {
		sess.ModelConfig = p.ModelConfig.clone()
		if sess.ModelConfig.Headers == nil {
			sess.ModelConfig.Headers = []ai.Header{}
		}
	}
	if p.Credential != nil {
		sess.Credential = *p.Credential
	}
	return nil
}

// CreateSession appends a default session with overrides applied and makes
// it active.
func (s *Store) CreateSession(ctx context.Context, overrides *SessionPatch) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.defaultSessionLocked()
	if err := s.applyPatchLocked(&sess, overrides); err != nil {
		return Session{}, err
	}
	s.sessions = append(s.sessions, sess)
	s.activeID = sess.ID
	s.persistLocked(ctx)
	return sess.clone(), nil
}

// DuplicateSession creates a session carrying every field of sourceID
// except its id, title and messages.
func (s *Store) DuplicateSession(ctx context.Context, sourceID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(sourceID)
	if i < 0 {
		return Session{}, ErrSessionNotFound
	}
	src := s.sessions[i].clone()

	sess := s.defaultSessionLocked()
	sess.Description = src.Description
	sess.SystemPrompt = src.SystemPrompt
	sess.Model = src.Model
	sess.ModelConfig = src.ModelConfig
	sess.Credential = src.Credential

	s.sessions = append(s.sessions, sess)
	s.activeID = sess.ID
	s.persistLocked(ctx)
	return sess.clone(), nil
}

// DeleteSession removes id. If it was active, the first remaining session
// becomes active, or a fresh default session when none remain.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrSessionNotFound
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)

	if s.activeID == id {
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		} else {
			d := s.defaultSessionLocked()
			s.sessions = append(s.sessions, d)
			s.activeID = d.ID
		}
	}
	s.persistLocked(ctx)
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return ErrSessionNotFound
	}
	s.activeID = id
	s.persistLocked(ctx)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch SessionPatch) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, ErrSessionNotFound
	}
	if err := s.applyPatchLocked(&s.sessions[i], &patch); err != nil {
		return Session{}, err
	}
	s.persistLocked(ctx)
	return s.sessions[i].clone(), nil
}

// AppendMessage adds msg to the end of the session. The first user message
// of a session that still has the default title also names the session.
func (s *Store) AppendMessage(ctx context.Context, id string, msg Message) (Session, error) {
	if !msg.Role.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, ErrSessionNotFound
	}
	sess := &s.sessions[i]
	if msg.Role == ai.RoleUser && sess.Title == DefaultTitle && !hasUserMessage(sess.Messages) {
		sess.Title = deriveTitle(msg.Content)
	}
	sess.Messages = append(sess.Messages, msg)
	s.persistLocked(ctx)
	return sess.clone(), nil
}

// ClearSession drops every message and restores the default title.
func (s *Store) ClearSession(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, ErrSessionNotFound
	}
	s.sessions[i].Messages = []Message{}
	s.sessions[i].Title = DefaultTitle
	s.persistLocked(ctx)
	return s.sessions[i].clone(), nil
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, ErrSessionNotFound
	}
	return s.sessions[i].clone(), nil
}

func (s *Store) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Store) Active() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.indexLocked(s.activeID)].clone()
}

func hasUserMessage(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == ai.RoleUser {
			return true
		}
	}
	return false
}

func deriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleMaxRunes {
		return content
	}
	return string(r[:titleMaxRunes]) + "..."
}
