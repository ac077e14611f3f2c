package session

import (
	"sync"

	autherrors "github.com/droniapp/go-auth-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is a snapshot of the authentication state.
type State struct {
	AccessToken     string `json:"accessToken,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsLoading       bool   `json:"isLoading"`
}

// Listener is notified with the state produced by every transition.
type Listener func(State)

type subscription struct {
	id       uint64
	listener Listener
}

// Store holds the process-wide authentication state and writes the token
// through to durable storage. It is created once at start-up and injected
// into everything that needs it.
//
// State only changes through Login, Logout, SetTokens, SetLoading and
// LoadInitialState. Each transition writes storage and memory as one step, so
// the two never disagree once it returns. Listeners receive every snapshot in
// transition order, after the locks are released. A transition made from
// inside a listener is delivered once the current snapshot has reached every
// listener; a transition racing an ongoing delivery on another goroutine may
// return before its own snapshot is delivered.
type Store struct {
	mu            sync.RWMutex
	state         State
	storage       Storage
	subscriptions []subscription
	nextID        uint64
	logger        zerolog.Logger

	transitionMu sync.Mutex // held across the storage write and the state change

	notifyMu   sync.Mutex
	pending    []State
	delivering bool
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store whose initial state comes from storage: a stored
// token means the user starts authenticated. Storage is read synchronously,
// so the store never starts in a loading phase: IsLoading is false whether or
// not a token was found.
func NewStore(storage Storage, options ...StoreOption) *Store {
	s := &Store{
		storage: storage,
		logger:  log.Logger.With().Str("component", "session_store").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.state = s.initialState()
	return s
}

func (s *Store) initialState() State {
	token, err := s.storage.Get(StorageKey)
	if err != nil {
		if !autherrors.Is(err, ErrNotFound) {
			s.logger.Err(err).Msg("Error reading from storage")
		}
		return State{}
	}
	if token == "" {
		return State{}
	}
	return State{AccessToken: token, IsAuthenticated: true}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the current bearer token, or "" when logged out.
func (s *Store) Token() string {
	return s.State().AccessToken
}

func (s *Store) IsAuthenticated() bool {
	state := s.State()
	return state.IsAuthenticated && state.AccessToken != ""
}

// Login stores token and marks the session authenticated. Persistence is best
// effort: a storage failure is logged and the in-memory session proceeds.
func (s *Store) Login(token string) error {
	if token == "" {
		return autherrors.Wrapf(autherrors.ErrEmptyToken, "login")
	}
	s.transition(func() { s.persist(token) }, func(state *State) {
		state.AccessToken = token
		state.IsAuthenticated = true
		state.IsLoading = false
	})
	return nil
}

// Logout clears the token from storage and memory. Calling it while logged out
// is harmless.
func (s *Store) Logout() {
	s.transition(func() {
		if err := s.storage.Remove(StorageKey); err != nil {
			s.logger.Err(err).Msg("Error removing from storage")
		}
	}, func(state *State) {
		state.AccessToken = ""
		state.IsAuthenticated = false
		state.IsLoading = false
	})
}

// SetTokens replaces the token after a reissue without touching IsLoading.
// Clearing the token goes through Logout, so an empty token is rejected.
func (s *Store) SetTokens(token string) error {
	if token == "" {
		return autherrors.Wrapf(autherrors.ErrEmptyToken, "set tokens")
	}
	s.transition(func() { s.persist(token) }, func(state *State) {
		state.AccessToken = token
		state.IsAuthenticated = true
	})
	return nil
}

func (s *Store) SetLoading(loading bool) {
	s.transition(nil, func(state *State) {
		state.IsLoading = loading
	})
}

// LoadInitialState discards the in-memory state and re-reads storage.
func (s *Store) LoadInitialState() {
	var initial State
	s.transition(func() { initial = s.initialState() }, func(state *State) {
		*state = initial
	})
}

// Subscribe registers listener and returns a function removing it.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscriptions = append(s.subscriptions, subscription{id: id, listener: listener})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscriptions {
				if sub.id == id {
					s.subscriptions = append(s.subscriptions[:i:i], s.subscriptions[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) persist(token string) {
	if err := s.storage.Set(StorageKey, token); err != nil {
		s.logger.Err(err).Msg("Error writing to storage")
	}
}

// transition runs the storage write and the state change as one step, then
// queues the resulting snapshot for delivery.
func (s *Store) transition(write func(), mutate func(*State)) {
	s.transitionMu.Lock()
	if write != nil {
		write()
	}
	s.mu.Lock()
	mutate(&s.state)
	state := s.state
	s.mu.Unlock()

	s.notifyMu.Lock()
	s.pending = append(s.pending, state)
	s.notifyMu.Unlock()
	s.transitionMu.Unlock()

	s.deliver()
}

// deliver hands queued snapshots to the listeners, oldest first. Only one
// goroutine delivers at a time; the others leave their snapshot to it.
func (s *Store) deliver() {
	s.notifyMu.Lock()
	if s.delivering {
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true

	finished := false
	defer func() {
		// Reached without finished only when a listener panicked.
		if !finished {
			s.notifyMu.Lock()
			s.delivering = false
			s.notifyMu.Unlock()
		}
	}()

	for len(s.pending) > 0 {
		state := s.pending[0]
		s.pending = s.pending[1:]
		s.notifyMu.Unlock()

		for _, sub := range s.listeners() {
			sub.listener(state)
		}

		s.notifyMu.Lock()
	}
	s.delivering = false
	finished = true
	s.notifyMu.Unlock()
}

func (s *Store) listeners() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subscriptions := make([]subscription, len(s.subscriptions))
	copy(subscriptions, s.subscriptions)
	return subscriptions
}
