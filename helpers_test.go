package main

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{sugar: zap.New(core).Sugar()}, logs
}

// memoryBackend is a SnapshotBackend kept in memory.
type memoryBackend struct {
	mu          sync.Mutex
	data        []byte
	saves       int
	saveErr     error
	quarantined [][]byte
	// gate, when set, holds every Save until it is closed.
	gate chan struct{}
}

func (b *memoryBackend) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, errors.NotFoundf("memory snapshot")
	}
	return append([]byte(nil), b.data...), nil
}

func (b *memoryBackend) Save(ctx context.Context, data []byte) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.data = append([]byte(nil), data...)
	b.saves++
	return nil
}

func (b *memoryBackend) Quarantine(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quarantined = append(b.quarantined, b.data)
	b.data = nil
	return nil
}

func (b *memoryBackend) Close() error {
	return nil
}

func (b *memoryBackend) failSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}

// holdSaves blocks saves until the returned func is called.
func (b *memoryBackend) holdSaves() func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()
	return func() { close(gate) }
}

func (b *memoryBackend) saved(t *testing.T) *State {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := decodeSnapshot(b.data)
	if err != nil {
		t.Fatalf("decoding saved snapshot: %v", err)
	}
	return state
}

type sentMessage struct {
	ChannelID string
	Message   Message
}

type editedMessage struct {
	Ref     MessageRef
	Message Message
}

// fakeChat records every platform call.
type fakeChat struct {
	mu       sync.Mutex
	nextID   int
	created  []ChannelSpec
	sent     []sentMessage
	edited   []editedMessage
	deleted  []string
	messages map[MessageRef]bool

	createErr error
	sendErr   error
	editErr   error
	deleteErr error
}

func newFakeChat() *fakeChat {
	return &fakeChat{nextID: 1000, messages: make(map[MessageRef]bool)}
}

func (c *fakeChat) id() string {
	c.nextID++
	return strconv.Itoa(c.nextID)
}

func (c *fakeChat) CreatePrivateChannel(ctx context.Context, spec ChannelSpec) (ChannelRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return ChannelRef{}, c.createErr
	}
	c.created = append(c.created, spec)
	return ChannelRef{GuildID: spec.GuildID, ChannelID: c.id(), Name: spec.Name}, nil
}

func (c *fakeChat) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return MessageRef{}, c.sendErr
	}
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, Message: msg})
	ref := MessageRef{ChannelID: channelID, MessageID: c.id()}
	c.messages[ref] = true
	return ref, nil
}

func (c *fakeChat) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return c.editErr
	}
	if !c.messages[ref] {
		return errors.Annotatef(ErrArtifactMissing, "message %s", ref.MessageID)
	}
	c.edited = append(c.edited, editedMessage{Ref: ref, Message: msg})
	return nil
}

func (c *fakeChat) DeleteChannel(ctx context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, channelID)
	return nil
}

func (c *fakeChat) deleteMessage(ref MessageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, ref)
}

func (c *fakeChat) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeChat) editCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.edited)
}

const (
	testGuildID   = "100000000000000001"
	testOwnerID   = "200000000000000001"
	testAdminRole = "300000000000000001"
	testUserID    = "400000000000000001"
)

var (
	owner  = Identity{UserID: testOwnerID, Username: "owner"}
	admin  = Identity{UserID: "200000000000000002", Username: "mod", Roles: []string{testAdminRole}}
	member = Identity{UserID: testUserID, Username: "member"}
)

func openTestStore(t *testing.T, backend SnapshotBackend) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), backend, NewNopLogger(), nil, false)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return store
}

func newTestBot(t *testing.T) (*Bot, *fakeChat, *memoryBackend) {
	t.Helper()
	backend := &memoryBackend{}
	chat := newFakeChat()
	bot := NewBot(BotConfig{
		Store:      openTestStore(t, backend),
		Chat:       chat,
		Privileges: NewPrivileges(testOwnerID, []string{testAdminRole}),
		Logger:     NewNopLogger(),
	})
	return bot, chat, backend
}
