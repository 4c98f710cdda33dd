// Package conversation keeps per-conversation message history in memory.
//
// The Store maps a conversation id to an ordered message list and owns the
// two history policies of the assistant: the system prompt is injected
// exactly once, on the first turn, and retrieved reference passages are
// merged into that system message instead of being added as a turn the
// patient never said.
//
// Callers work on a conversation through a Handle obtained from Acquire.
// Holding a Handle is holding that conversation's lock: concurrent requests
// for the same id are serialized, requests for distinct ids never wait on
// each other.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/medivoice/internal/message"
)

// AnnotationAudioReference is the annotation key for the synthesized speech locator.
const AnnotationAudioReference = "audio_reference"

// ErrEmptyConversation is returned when annotating a conversation with no messages.
var ErrEmptyConversation = errors.New("conversation: no messages")

// Store is the process-wide conversation registry. Construct one with New
// and share it; the zero value is not usable.
type Store struct {
	prompt  *Prompt
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	convs map[string]*entry
}

type entry struct {
	// lock is a one-slot semaphore; a channel lets Acquire give up when its context ends.
	lock chan struct{}

	// Guarded by lock.
	messages []message.Message
	lastUsed time.Time
	removed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTTL enables eviction of conversations idle for longer than ttl.
// Zero keeps conversations for the process lifetime.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store that renders system messages with prompt.
func New(prompt *Prompt, opts ...Option) *Store {
	s := &Store{
		prompt: prompt,
		now:    time.Now,
		logger: slog.Default(),
		convs:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "conversation.store")
	return s
}

// Acquire returns the conversation for id, creating an empty one if the id is
// unseen, and blocks until no other caller holds it. The caller must call
// Release on the returned Handle.
func (s *Store) Acquire(ctx context.Context, id string) (*Handle, error) {
	for {
		s.mu.Lock()
		e, ok := s.convs[id]
		if !ok {
			e = &entry{lock: make(chan struct{}, 1), lastUsed: s.now()}
			s.convs[id] = e
		}
		s.mu.Unlock()

		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// Reset or eviction won the race; the entry is detached from the map.
		if e.removed {
			<-e.lock
			continue
		}
		return &Handle{id: id, store: s, e: e}, nil
	}
}

// Reset removes the conversation. It waits for a current holder to release
// it first and is a no-op for unknown ids.
func (s *Store) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.convs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.lock }()

	e.removed = true
	e.messages = nil

	s.mu.Lock()
	if s.convs[id] == e {
		delete(s.convs, id)
	}
	s.mu.Unlock()

	s.logger.Debug("conversation reset", "conversation_id", id)
	return nil
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Sweep evicts conversations idle since before now minus the idle TTL and
// returns how many were removed. Conversations currently held are skipped.
// It does nothing when no TTL is configured.
func (s *Store) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.convs {
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		if e.lastUsed.Before(cutoff) {
			e.removed = true
			e.messages = nil
			delete(s.convs, id)
			evicted++
		}
		<-e.lock
	}
	if evicted > 0 {
		s.logger.Info("evicted idle conversations", "count", evicted, "idle_ttl", s.idleTTL)
	}
	return evicted
}

// Run sweeps idle conversations every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Handle is exclusive access to one conversation, valid until Release.
type Handle struct {
	id    string
	store *Store
	e     *entry
	once  sync.Once
	done  bool
}

// ID returns the conversation id.
func (h *Handle) ID() string { return h.id }

// Release ends exclusive access. Calling it more than once is harmless.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.e.lastUsed = h.store.now()
		h.done = true
		<-h.e.lock
	})
}

func (h *Handle) mustHold() {
	if h.done {
		panic("conversation: handle used after Release")
	}
}

// Len returns the number of messages.
func (h *Handle) Len() int {
	h.mustHold()
	return len(h.e.messages)
}

// Messages returns a copy of the message sequence.
func (h *Handle) Messages() []message.Message {
	h.mustHold()
	return message.CloneAll(h.e.messages)
}

// HasSystemPrompt reports whether index 0 holds the system message.
func (h *Handle) HasSystemPrompt() bool {
	h.mustHold()
	return len(h.e.messages) > 0 && h.e.messages[0].Role == message.RoleSystem
}

// EnsureSystemPrompt appends the system message rendered for language if the
// conversation is empty. It returns true if a message was added.
func (h *Handle) EnsureSystemPrompt(language string) bool {
	h.mustHold()
	if len(h.e.messages) > 0 {
		return false
	}
	h.e.messages = append(h.e.messages, message.Message{
		Role:    message.RoleSystem,
		Content: h.store.prompt.Render(language),
	})
	return true
}

// MergeReferenceContext appends the joined passages to the system message,
// labelled as reference material hidden from the patient. It never creates a
// message and returns false when there is nothing to merge or no system
// message at index 0.
func (h *Handle) MergeReferenceContext(passages []string) bool {
	h.mustHold()
	if len(passages) == 0 || !h.HasSystemPrompt() {
		return false
	}
	h.e.messages[0].Content += referenceLabel + strings.Join(passages, "\n\n")
	return true
}

// Append adds a message and returns its index. Callers must alternate user
// and assistant turns; the store does not check.
func (h *Handle) Append(role message.Role, content string) int {
	h.mustHold()
	h.e.messages = append(h.e.messages, message.Message{Role: role, Content: content})
	return len(h.e.messages) - 1
}

// AnnotateLast attaches key=value to the most recent message without touching
// its role or content. AnnotationAudioReference sets Message.AudioReference;
// other keys go to Message.Meta.
func (h *Handle) AnnotateLast(key, value string) error {
	h.mustHold()
	if len(h.e.messages) == 0 {
		return ErrEmptyConversation
	}
	last := &h.e.messages[len(h.e.messages)-1]
	if key == AnnotationAudioReference {
		last.AudioReference = value
		return nil
	}
	if last.Meta == nil {
		last.Meta = make(map[string]string)
	}
	last.Meta[key] = value
	return nil
}
