package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gopherchat/internal/ai"
	"gopherchat/internal/model"
	"gopherchat/internal/pkg/jwtutil"
	"gopherchat/internal/repository/memory"
)

type testEnv struct {
	store     *memory.Store
	tokens    *jwtutil.Manager
	auth      *AuthService
	users     *UserService
	chat      *ChatService
	assembler *ContextAssembler
	generator *fakeGenerator
	metrics   *fakeMetrics
}

type envOptions struct {
	strictRefresh bool
	cache         HistoryCache
	publisher     AsyncMessagePublisher
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	store := memory.New()
	tokens := jwtutil.NewManager("test-secret", time.Hour, 24*time.Hour)
	gen := &fakeGenerator{reply: "assistant reply"}
	metrics := &fakeMetrics{}
	assembler := NewContextAssembler(store.Messages(), opts.cache, 10, nil)

	return &testEnv{
		store:     store,
		tokens:    tokens,
		auth:      NewAuthService(store.Users(), tokens, opts.strictRefresh, nil),
		users:     NewUserService(store.Users(), nil),
		assembler: assembler,
		generator: gen,
		metrics:   metrics,
		chat: NewChatService(store.Chats(), store.Messages(), assembler, gen, ChatOptions{
			HistoryCache: opts.cache,
			Publisher:    opts.publisher,
			Metrics:      metrics,
		}),
	}
}

func (e *testEnv) register(t *testing.T, name, email, password string) *model.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), RegisterInput{
		Name:            name,
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)
	return user
}

type generateCall struct {
	prompt  string
	history []ai.Turn
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []generateCall
}

func (g *fakeGenerator) Provider() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string, history []ai.Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{prompt: prompt, history: append([]ai.Turn(nil), history...)})
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type fakeMetrics struct {
	mu            sync.Mutex
	generations   map[string]int
	titleRewrites int
}

func (m *fakeMetrics) ObserveGeneration(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations == nil {
		m.generations = map[string]int{}
	}
	m.generations[outcome]++
}

func (m *fakeMetrics) IncTitleRewrite() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleRewrites++
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []model.MessageCreated
}

func (p *fakePublisher) Publish(_ context.Context, event model.MessageCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// mapCache is an in-process HistoryCache; dirty markers never expire.
type mapCache struct {
	mu      sync.Mutex
	history map[string][]model.Message
	dirty   map[string]bool
	sets    int
	// beforeSet runs once, ahead of the next SetHistory write.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{history: map[string][]model.Message{}, dirty: map[string]bool{}}
}

func (c *mapCache) GetHistory(_ context.Context, chatID string) ([]model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.history[chatID]
	return append([]model.Message(nil), m...), ok, nil
}

func (c *mapCache) SetHistory(_ context.Context, chatID string, messages []model.Message) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.history[chatID] = append([]model.Message(nil), messages...)
	return nil
}

func (c *mapCache) DeleteHistory(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, chatID)
	return nil
}

func (c *mapCache) MarkDirty(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[chatID] = true
	return nil
}

func (c *mapCache) IsDirty(_ context.Context, chatID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[chatID], nil
}

func (c *mapCache) clean(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirty, chatID)
}

// racingMessages runs onList once, right after a full transcript read.
type racingMessages struct {
	MessageStore
	onList func()
}

func (m *racingMessages) ListByChatID(ctx context.Context, chatID string) ([]model.Message, error) {
	messages, err := m.MessageStore.ListByChatID(ctx, chatID)
	if hook := m.onList; hook != nil {
		m.onList = nil
		hook()
	}
	return messages, err
}

var errBackendDown = errors.New("backend down")
