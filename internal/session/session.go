// Package session holds one user's chat state: the active index and the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/config"
	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/llm"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/rag"
)

// State is the session's position in its lifecycle.
type State int

const (
	// StateNoIndex is the initial state; chat is refused.
	StateNoIndex State = iota
	// StateIndexReady is entered after the first successful build and never left.
	StateIndexReady
)

func (s State) String() string {
	switch s {
	case StateNoIndex:
		return "no_index"
	case StateIndexReady:
		return "index_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind names what changed.
type EventKind string

const (
	EventIndexChanged      EventKind = "index_changed"
	EventTranscriptChanged EventKind = "transcript_changed"
	EventTranscriptCleared EventKind = "transcript_cleared"
)

// Event is emitted by every mutating operation. Version increases by one per event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// ErrIndexUnavailable matches *IndexUnavailableError with errors.Is.
var ErrIndexUnavailable = errors.New("index unavailable")

// IndexUnavailableError is returned when a question is asked before any index was built.
type IndexUnavailableError struct{}

func (e *IndexUnavailableError) Error() string { return "please build an index first" }

// Is makes errors.Is(err, ErrIndexUnavailable) true.
func (e *IndexUnavailableError) Is(target error) bool { return target == ErrIndexUnavailable }

// Builder produces snapshots from sources. *indexer.Indexer implements it.
type Builder interface {
	Build(ctx context.Context, src ingest.Sources) (*indexer.Snapshot, indexer.BuildReport, error)
}

// Session is safe for concurrent use. Builds are serialized, and so are questions.
// Snapshots may be shared with other sessions and are never closed by a Session.
type Session struct {
	id           string
	builder      Builder
	orchestrator *rag.Orchestrator
	persistDir   string
	logger       *zap.Logger

	snap    atomic.Pointer[indexer.Snapshot]
	version atomic.Uint64

	buildMu sync.Mutex
	chatMu  sync.Mutex

	mu         sync.RWMutex
	transcript []models.Turn
	subs       map[int]chan Event
	nextSub    int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID sets the session identifier.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithPersistDir saves every successful build to dir before it is published.
func WithPersistDir(dir string) Option {
	return func(s *Session) { s.persistDir = dir }
}

// New creates a session in StateNoIndex. Queries are embedded with embedder, which must be
// the one the builder embeds chunks with.
func New(builder Builder, embedder embedding.Embedder, generator llm.Generator, cfg config.RetrievalConfig, opts ...Option) *Session {
	s := &Session{
		builder: builder,
		logger:  zap.NewNop(),
		subs:    make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	retriever := rag.NewRetrieverFromConfig(cfg, s, embedder, rag.WithRetrieverLogger(s.logger))
	s.orchestrator = rag.NewOrchestrator(retriever, generator, cfg.MaxContextChars, rag.WithOrchestratorLogger(s.logger))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the active index, or nil in StateNoIndex.
func (s *Session) Snapshot() *indexer.Snapshot { return s.snap.Load() }

// State reports whether an index is available.
func (s *Session) State() State {
	if s.snap.Load() == nil {
		return StateNoIndex
	}
	return StateIndexReady
}

// Version returns the number of events emitted so far.
func (s *Session) Version() uint64 { return s.version.Load() }

// Retriever returns the retriever bound to this session's active index.
func (s *Session) Retriever() *rag.Retriever { return s.orchestrator.Retriever() }

// Build indexes src and, on success, replaces the active index. On failure the previous
// index stays active. Only one build runs at a time.
func (s *Session) Build(ctx context.Context, src ingest.Sources) (indexer.BuildReport, Event, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	snap, report, err := s.builder.Build(ctx, src)
	if err != nil {
		s.logger.Warn("build failed, keeping previous index", zap.String("session", s.id), zap.Error(err))
		return report, Event{}, err
	}
	if s.persistDir != "" {
		if err := indexer.Persist(ctx, s.persistDir, snap); err != nil {
			snap.Close()
			return report, Event{}, fmt.Errorf("persist index: %w", err)
		}
	}
	return report, s.Install(snap), nil
}

// Install publishes snap as the active index. Queries already running keep the snapshot
// they started with.
func (s *Session) Install(snap *indexer.Snapshot) Event {
	s.snap.Store(snap)
	s.logger.Debug("index installed", zap.String("session", s.id), zap.Int("chunks", snap.Size()))
	return s.emit(EventIndexChanged)
}

// Replace publishes snap only if old is still the active index. It reports whether the swap
// happened; a session that has since built its own index keeps it.
func (s *Session) Replace(old, snap *indexer.Snapshot) (Event, bool) {
	if !s.snap.CompareAndSwap(old, snap) {
		return Event{}, false
	}
	s.logger.Debug("index replaced", zap.String("session", s.id), zap.Int("chunks", snap.Size()))
	return s.emit(EventIndexChanged), true
}

// Ask answers query with the default top-K.
func (s *Session) Ask(ctx context.Context, query string) (*rag.Answer, Event, error) {
	return s.AskK(ctx, query, 0)
}

// AskK answers query from the active index; k <= 0 uses the configured top-K. On success
// the user and assistant turns are appended together; on failure nothing is appended.
func (s *Session) AskK(ctx context.Context, query string, k int) (*rag.Answer, Event, error) {
	q := models.ChatQuery{Query: query, TopK: k}
	if err := q.Validate(); err != nil {
		return nil, Event{}, err
	}
	if s.snap.Load() == nil {
		return nil, Event{}, &IndexUnavailableError{}
	}

	s.chatMu.Lock()
	defer s.chatMu.Unlock()

	asked := time.Now().UTC()
	var (
		ans *rag.Answer
		err error
	)
	if q.TopK > 0 {
		ans, err = s.orchestrator.AnswerK(ctx, q.Query, q.TopK)
	} else {
		ans, err = s.orchestrator.Answer(ctx, q.Query)
	}
	if err != nil {
		return nil, Event{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Event{}, err
	}

	s.mu.Lock()
	s.transcript = append(s.transcript,
		models.Turn{Role: models.RoleUser, Text: q.Query, At: asked},
		models.Turn{Role: models.RoleAssistant, Text: ans.Text, At: time.Now().UTC()},
	)
	s.mu.Unlock()
	return ans, s.emit(EventTranscriptChanged), nil
}

// ClearHistory empties the transcript. The index is untouched.
func (s *Session) ClearHistory() Event {
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()
	return s.emit(EventTranscriptCleared)
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.transcript...)
}

// Subscribe returns a channel of future events and a function that stops delivery.
// Events are dropped for a subscriber whose buffer is full.
func (s *Session) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) emit(kind EventKind) Event {
	ev := Event{Kind: kind, Version: s.version.Add(1), At: time.Now().UTC()}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("event dropped", zap.String("session", s.id), zap.String("kind", string(kind)))
		}
	}
	return ev
}
