package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/domain"
	"github.com/manipulatorai/engage-api/internal/gateway"
	"github.com/manipulatorai/engage-api/internal/prompt"
	"github.com/manipulatorai/engage-api/internal/store"
)

// fakeConversationStore is an in-memory store.ConversationStore that
// enforces the one-active-conversation rule like the partial unique index
// does.
type fakeConversationStore struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*domain.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{convs: make(map[uuid.UUID]*domain.Conversation)}
}

func (f *fakeConversationStore) Create(_ context.Context, conv *domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.convs {
		if existing.CustomerID == conv.CustomerID &&
			existing.BusinessID == conv.BusinessID &&
			existing.Status == domain.ConversationStatusActive &&
			conv.Status == domain.ConversationStatusActive {
			return store.ErrActiveConversationExists
		}
	}
	clone := *conv
	clone.Messages = append([]domain.Message(nil), conv.Messages...)
	f.convs[conv.ID] = &clone
	return nil
}

func (f *fakeConversationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	clone := *conv
	clone.Messages = append([]domain.Message(nil), conv.Messages...)
	return &clone, nil
}

func (f *fakeConversationStore) FindActiveByCustomer(
	_ context.Context,
	customerID, businessID string,
) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.convs {
		if conv.CustomerID == customerID && conv.BusinessID == businessID &&
			conv.Status == domain.ConversationStatusActive {
			clone := *conv
			clone.Messages = append([]domain.Message(nil), conv.Messages...)
			return &clone, nil
		}
	}
	return nil, store.ErrConversationNotFound
}

func (f *fakeConversationStore) FindLatestByCustomer(
	ctx context.Context,
	customerID, businessID string,
) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Conversation
	for _, conv := range f.convs {
		if conv.CustomerID != customerID || conv.BusinessID != businessID {
			continue
		}
		if latest == nil || conv.UpdatedAt.After(latest.UpdatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, store.ErrConversationNotFound
	}
	clone := *latest
	clone.Messages = append([]domain.Message(nil), latest.Messages...)
	return &clone, nil
}

func (f *fakeConversationStore) AppendMessage(_ context.Context, id uuid.UUID, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

func (f *fakeConversationStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ConversationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	conv.Status = status
	return nil
}

func (f *fakeConversationStore) CountByStatus(_ context.Context, businessID string) (map[domain.ConversationStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.ConversationStatus]int)
	for _, conv := range f.convs {
		if conv.BusinessID == businessID {
			counts[conv.Status]++
		}
	}
	return counts, nil
}

func (f *fakeConversationStore) WithTx(*sql.Tx) store.ConversationStore { return f }

// fakeCatalogStore serves a fixed item list.
type fakeCatalogStore struct {
	items []domain.Item
}

func (f *fakeCatalogStore) Create(context.Context, *domain.Item) error { return nil }

func (f *fakeCatalogStore) GetByID(_ context.Context, id string) (*domain.Item, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (f *fakeCatalogStore) GetByIDs(_ context.Context, ids []string) ([]domain.Item, error) {
	var out []domain.Item
	for _, id := range ids {
		for _, item := range f.items {
			if item.ID == id {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalogStore) List(context.Context) ([]domain.Item, error) {
	return append([]domain.Item(nil), f.items...), nil
}

func (f *fakeCatalogStore) ListExcluding(_ context.Context, excludeIDs []string) ([]domain.Item, error) {
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	var out []domain.Item
	for _, item := range f.items {
		if _, ok := excluded[item.ID]; !ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalogStore) WithTx(*sql.Tx) store.CatalogStore { return f }

// fakeGateway answers analysis and reply requests separately, keyed off
// the composed system prompt.
type fakeGateway struct {
	mu          sync.Mutex
	analysis    string
	analysisErr error
	reply       string
	replyErr    error
	calls       int
}

func (f *fakeGateway) Generate(_ context.Context, req gateway.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "Classify the customer's message") {
		return f.analysis, f.analysisErr
	}
	return f.reply, f.replyErr
}

func testEngine(convs *fakeConversationStore, catalog *fakeCatalogStore, gw gateway.Gateway) *Engine {
	return New(convs, catalog, gw, prompt.NewComposer(prompt.DefaultPersonality()),
		config.ConversationConfig{MatchThreshold: 0.3, MaxMatches: 3})
}

func testCatalog() *fakeCatalogStore {
	return &fakeCatalogStore{items: []domain.Item{
		{ID: "laptop-1", Description: "Gaming laptop", Tags: []string{"laptop", "gaming", "dell"}},
		{ID: "shirt-1", Description: "Cotton shirt", Tags: []string{"shirt", "cotton"}},
	}}
}

func analysisJSON(interest, sentiment, intent string) string {
	return `{"interest_level":"` + interest + `","sentiment":"` + sentiment +
		`","intent":"` + intent + `","keywords":["laptop","gaming"]}`
}

func TestStartConversationGeneratesWelcome(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{reply: "Welcome to our store!"}
	e := testEngine(convs, testCatalog(), gw)

	conv, welcome, err := e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchManipulator, []string{"laptop-1"}, "click")

	require.NoError(t, err)
	assert.Equal(t, "Welcome to our store!", welcome)
	assert.Equal(t, domain.ConversationStatusActive, conv.Status)

	stored, err := convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, domain.SenderAgent, stored.Messages[0].Sender)
}

func TestStartConversationFallsBackOnGatewayFailure(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{replyErr: errors.New("timeout"), analysisErr: errors.New("timeout")}
	e := testEngine(convs, testCatalog(), gw)

	conv, welcome, err := e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchConvincer, nil, "")

	require.NoError(t, err, "a gateway failure must never fail conversation creation")
	assert.Equal(t, gateway.FallbackWelcome, welcome)
	require.NotNil(t, conv)
}

func TestStartConversationDuplicatePassesThrough(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{reply: "hi"}
	e := testEngine(convs, testCatalog(), gw)

	first, _, err := e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchConvincer, nil, "")
	require.NoError(t, err)

	// A concurrent second interaction for the same customer must surface
	// the duplicate so the caller attaches to the first conversation.
	_, _, err = e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchConvincer, nil, "")
	assert.ErrorIs(t, err, store.ErrActiveConversationExists)

	active, err := convs.FindActiveByCustomer(context.Background(), "cust-1", "biz-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestProcessMessageAppendsCustomerAndAgentPair(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysis: analysisJSON("medium", "neutral", "information"),
		reply:    "Happy to explain!",
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, _, err := e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchConvincer, nil, "")
	require.NoError(t, err)
	welcomeCount := 1

	const n = 3
	for i := 0; i < n; i++ {
		reply, status, err := e.ProcessMessage(context.Background(), conv.ID, "tell me more")
		require.NoError(t, err)
		assert.Equal(t, "Happy to explain!", reply)
		assert.Equal(t, domain.ConversationStatusActive, status)
	}

	stored, err := convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, welcomeCount+2*n,
		"each call appends exactly one customer and one agent message")
	for i := 0; i < n; i++ {
		assert.Equal(t, domain.SenderCustomer, stored.Messages[welcomeCount+2*i].Sender)
		assert.Equal(t, domain.SenderAgent, stored.Messages[welcomeCount+2*i+1].Sender)
	}
}

func TestProcessMessageQualifiesAndConcludes(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysis: analysisJSON("high", "positive", "purchase"),
		reply:    "Wonderful, let's get you set up.",
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, _, err := e.StartConversation(context.Background(),
		"cust-1", "biz-1", domain.BranchManipulator, []string{"laptop-1"}, "click")
	require.NoError(t, err)

	_, status, err := e.ProcessMessage(context.Background(), conv.ID, "I want to buy it")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusQualified, status)

	stored, err := convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	// welcome + customer + agent + conclusion
	require.Len(t, stored.Messages, 4)
	assert.Equal(t, domain.SenderAgent, stored.Messages[3].Sender)
}

func TestProcessMessageGatewayTimeoutKeepsStatus(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysisErr: errors.New("deadline exceeded"),
		replyErr:    errors.New("deadline exceeded"),
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, err := domain.NewConversation("cust-1", "biz-1", domain.BranchConvincer)
	require.NoError(t, err)
	require.NoError(t, convs.Create(context.Background(), conv))

	reply, status, err := e.ProcessMessage(context.Background(), conv.ID, "I want to buy everything")

	require.NoError(t, err)
	assert.Equal(t, gateway.FallbackReply, reply, "fallback reply must be non-empty")
	assert.Equal(t, domain.ConversationStatusActive, status,
		"no status may be computed from a failed classification")

	stored, err := convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2, "customer message and fallback reply are still recorded")
}

func TestProcessMessageHeuristicsOnUnparseableAnalysis(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysis: "the customer seems unhappy",
		reply:    "I understand.",
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, err := domain.NewConversation("cust-1", "biz-1", domain.BranchConvincer)
	require.NoError(t, err)
	require.NoError(t, convs.Create(context.Background(), conv))

	_, status, err := e.ProcessMessage(context.Background(), conv.ID,
		"I'm not interested, stop messaging me")

	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusUninterested, status,
		"keyword heuristics must still drive the transition")
}

func TestProcessMessageReopensTerminalConversation(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysis: analysisJSON("medium", "neutral", "information"),
		reply:    "Welcome back!",
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, err := domain.NewConversation("cust-1", "biz-1", domain.BranchConvincer)
	require.NoError(t, err)
	require.NoError(t, convs.Create(context.Background(), conv))
	require.NoError(t, convs.UpdateStatus(context.Background(), conv.ID, domain.ConversationStatusUninterested))

	_, status, err := e.ProcessMessage(context.Background(), conv.ID, "actually, tell me more")

	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusActive, status)
}

func TestProcessMessageNotFound(t *testing.T) {
	e := testEngine(newFakeConversationStore(), testCatalog(), &fakeGateway{})

	_, _, err := e.ProcessMessage(context.Background(), uuid.New(), "hello")
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestProcessMessageSerializesPerConversation(t *testing.T) {
	convs := newFakeConversationStore()
	gw := &fakeGateway{
		analysis: analysisJSON("medium", "neutral", "information"),
		reply:    "Sure.",
	}
	e := testEngine(convs, testCatalog(), gw)

	conv, err := domain.NewConversation("cust-1", "biz-1", domain.BranchConvincer)
	require.NoError(t, err)
	require.NoError(t, convs.Create(context.Background(), conv))

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.ProcessMessage(context.Background(), conv.ID, "question")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := convs.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2*callers)
	// Serialized processing means messages alternate strictly.
	for i := 0; i < callers; i++ {
		assert.Equal(t, domain.SenderCustomer, stored.Messages[2*i].Sender)
		assert.Equal(t, domain.SenderAgent, stored.Messages[2*i+1].Sender)
	}
}

func TestGetMetrics(t *testing.T) {
	convs := newFakeConversationStore()
	e := testEngine(convs, testCatalog(), &fakeGateway{})

	mk := func(customer string, status domain.ConversationStatus) {
		conv, err := domain.NewConversation(customer, "biz-1", domain.BranchConvincer)
		require.NoError(t, err)
		require.NoError(t, convs.Create(context.Background(), conv))
		if status != domain.ConversationStatusActive {
			require.NoError(t, convs.UpdateStatus(context.Background(), conv.ID, status))
		}
	}
	mk("c1", domain.ConversationStatusActive)
	mk("c2", domain.ConversationStatusQualified)
	mk("c3", domain.ConversationStatusQualified)
	mk("c4", domain.ConversationStatusUninterested)

	metrics, err := e.GetMetrics(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 4, metrics.Total)
	assert.Equal(t, 2, metrics.Qualified)
	assert.InDelta(t, 0.5, metrics.QualificationRate, 1e-9)
}
