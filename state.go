package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
)

// State is everything the bot persists. It is only reachable through Store.
type State struct {
	Tickets TicketSequencer
	Ledger  *Ledger
	Panel   *PanelRecord

	links map[string]json.RawMessage
}

func newState() *State {
	return &State{
		Ledger: newLedger(),
		links:  make(map[string]json.RawMessage),
	}
}

func (s *State) clone() *State {
	out := &State{
		Tickets: s.Tickets,
		Ledger:  s.Ledger.clone(),
		links:   make(map[string]json.RawMessage, len(s.links)),
	}
	for k, v := range s.links {
		out.links[k] = v
	}
	if s.Panel != nil {
		panel := *s.Panel
		out.Panel = &panel
	}
	return out
}

// Store owns the live State and serializes every mutation together with the
// write of the resulting snapshot.
type Store struct {
	// writeMu serializes mutations and their persistence. mu guards the
	// live state pointer, which is only ever replaced, never modified.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *State
	backend SnapshotBackend
	log     *Logger
	metrics *Metrics
}

// OpenStore loads the snapshot from backend. A backend with no snapshot is a
// first run and gets an empty state, persisted immediately. A snapshot that
// cannot be decoded fails with ErrStateCorruption unless resetOnCorrupt is
// set, in which case the bad snapshot is quarantined first.
func OpenStore(ctx context.Context, backend SnapshotBackend, log *Logger, metrics *Metrics, resetOnCorrupt bool) (*Store, error) {
	store := &Store{
		backend: backend,
		log:     log.With("component", "store"),
		metrics: metrics,
	}

	data, err := backend.Load(ctx)
	if errors.Is(err, errors.NotFound) {
		// Also what a misconfigured backend looks like.
		store.log.Warn("no snapshot found; starting from empty state, ticket numbers restart at 001", "backend", fmt.Sprintf("%T", backend))
		if err := store.bootstrap(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "loading snapshot")
	}

	state, err := decodeSnapshot(data)
	if err != nil {
		if !resetOnCorrupt {
			return nil, err
		}
		store.log.Warn("snapshot is corrupt; quarantining and bootstrapping", "error", err)
		if qerr := backend.Quarantine(ctx); qerr != nil {
			return nil, errors.Annotate(qerr, "quarantining corrupt snapshot")
		}
		if err := store.bootstrap(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	store.state = state
	store.log.Info("snapshot loaded",
		"ticket_counter", state.Tickets.Counter(),
		"accounts", state.Ledger.Accounts(),
		"panel", state.Panel != nil,
	)
	return store, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	state := newState()
	if err := s.persist(ctx, state); err != nil {
		return errors.Annotate(err, "writing initial snapshot")
	}
	s.swap(state)
	return nil
}

// WithMutation runs fn against a working copy of the state. When fn succeeds
// the copy is persisted and becomes the live state; when fn or the write
// fails the live state is left exactly as it was.
func (s *Store) WithMutation(ctx context.Context, fn func(*State) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	// Only writers replace s.state, so reading it under writeMu is safe.
	working := s.state.clone()
	if err := fn(working); err != nil {
		return err
	}
	if err := s.persist(ctx, working); err != nil {
		return err
	}
	s.swap(working)
	return nil
}

func (s *Store) swap(state *State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// View runs fn against the live state. It does not wait for a mutation that
// is still being persisted; fn sees the last committed state. fn must not
// retain or modify the state.
func (s *Store) View(fn func(*State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// NextTicketLabel reserves the next ticket number.
func (s *Store) NextTicketLabel(ctx context.Context) (string, error) {
	var label string
	err := s.WithMutation(ctx, func(state *State) error {
		label = state.Tickets.Next()
		return nil
	})
	return label, err
}

func (s *Store) persist(ctx context.Context, state *State) error {
	data, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.backend.Save(ctx, data)
	s.metrics.observePersist(time.Since(start), err)
	if err != nil {
		s.log.Error("snapshot write failed", "error", err)
		return errors.Annotate(err, "saving snapshot")
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
