package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atessari/diaforge/internal/render"
	"github.com/atessari/diaforge/internal/store"
	"github.com/atessari/diaforge/pkg/schema"
)

// memStore is an in-memory store.Store for service tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	events   map[string][]*store.Event
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*store.Session{},
		events:   map[string][]*store.Event{},
	}
}

func (m *memStore) CreateSession(_ context.Context, s *store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSession(_ context.Context, id string, update store.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", id)
	}
	if update.Status != nil {
		s.Status = *update.Status
	}
	if update.Source != nil {
		s.Source = *update.Source
	}
	if update.ImagePath != nil {
		s.ImagePath = *update.ImagePath
	}
	if update.Renders != nil {
		s.Renders = *update.Renders
	}
	if update.Repairs != nil {
		s.Repairs = *update.Repairs
	}
	if update.Error != nil {
		s.Error = update.Error
	}
	if update.CompletedAt != nil {
		s.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *memStore) ListSessions(_ context.Context, _ store.SessionFilter) ([]*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Session
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) PruneSessions(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (m *memStore) AppendEvent(_ context.Context, e *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.SessionID] = append(m.events[e.SessionID], e)
	return nil
}

func (m *memStore) GetEvents(_ context.Context, sessionID string) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Event{}, m.events[sessionID]...), nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

type scriptedAgent struct {
	completion string
	err        error
	calls      int
}

func (a *scriptedAgent) Complete(_ context.Context, _, _ string) (string, error) {
	a.calls++
	return a.completion, a.err
}

func newService(t *testing.T, a *scriptedAgent, renderer render.Renderer, st store.Store) *Service {
	t.Helper()
	controller := NewController(ControllerConfig{
		Renderer:   renderer,
		Repairer:   &fakeRepairer{},
		MaxRepairs: 2,
		Events:     st,
	})
	return NewService(a, controller, st, nil)
}

func TestService_GenerateSuccess(t *testing.T) {
	st := newMemStore()
	agentStub := &scriptedAgent{completion: "```plantuml\n@startuml\nA -> B\n@enduml\n```"}
	renderer := &fakeRenderer{results: []*render.Result{success("/out/gen.png")}}
	svc := newService(t, agentStub, renderer, st)

	records := []schema.Record{{ID: "A"}, {ID: "B"}}
	result, err := svc.Generate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, schema.SessionStatusSucceeded, result.Status)
	assert.Equal(t, "@startuml\nA -> B\n@enduml", result.FinalSource)

	sess, err := st.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, schema.SessionKindGenerate, sess.Kind)
	assert.Equal(t, schema.SessionStatusSucceeded, sess.Status)
	assert.Equal(t, "/out/gen.png", sess.ImagePath)
	assert.NotNil(t, sess.CompletedAt)
}

func TestService_GenerateAgentFailure(t *testing.T) {
	st := newMemStore()
	agentStub := &scriptedAgent{err: errors.New("model offline")}
	svc := newService(t, agentStub, &fakeRenderer{}, st)

	_, err := svc.Generate(context.Background(), []schema.Record{{ID: "A"}})
	require.Error(t, err)
	var dfErr *schema.DiaforgeError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, schema.ErrCodeAgent, dfErr.Code)

	// The session row records the failure.
	sessions, _ := st.ListSessions(context.Background(), store.SessionFilter{})
	require.Len(t, sessions, 1)
	assert.Equal(t, schema.SessionStatusFailed, sessions[0].Status)
	assert.NotEmpty(t, sessions[0].Error)
}

func TestService_GenerateEmptyCompletionFallsBackToLocal(t *testing.T) {
	st := newMemStore()
	agentStub := &scriptedAgent{completion: "I could not produce a diagram, sorry."}
	renderer := &fakeRenderer{results: []*render.Result{success("/out/fb.png")}}
	svc := newService(t, agentStub, renderer, st)

	result, err := svc.Generate(context.Background(), []schema.Record{{ID: "web", Name: "Web"}})
	require.NoError(t, err)
	// Prose has no fences, so the whole text would be invalid source; here the
	// extraction returns the prose itself which is non-empty — it still goes
	// through the controller. This asserts only that a session resolved.
	assert.Equal(t, schema.SessionStatusSucceeded, result.Status)
}

func TestService_GenerateExhaustionPersisted(t *testing.T) {
	st := newMemStore()
	agentStub := &scriptedAgent{completion: "```plantuml\n@startuml\nbroken\n```"}
	renderer := &fakeRenderer{results: []*render.Result{failure(200, "bad")}}
	svc := newService(t, agentStub, renderer, st)

	result, err := svc.Generate(context.Background(), []schema.Record{{ID: "A"}})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, schema.SessionStatusExhausted, result.Status)

	sess, getErr := st.GetSession(context.Background(), result.SessionID)
	require.NoError(t, getErr)
	assert.Equal(t, schema.SessionStatusExhausted, sess.Status)
	assert.Equal(t, 3, sess.Renders)
	assert.Equal(t, 2, sess.Repairs)
	assert.NotEmpty(t, sess.Error)
}

func TestService_RefineUsesPreviousSource(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.CreateSession(context.Background(), &store.Session{
		ID:     "orig",
		Kind:   schema.SessionKindGenerate,
		Status: schema.SessionStatusSucceeded,
		Source: "@startuml\nA -> B\n@enduml",
	}))

	agentStub := &scriptedAgent{completion: "```plantuml\n@startuml\nA -> B\nB -> C\n@enduml\n```"}
	renderer := &fakeRenderer{results: []*render.Result{success("/out/ref.png")}}
	svc := newService(t, agentStub, renderer, st)

	result, err := svc.Refine(context.Background(), "orig", "add a C participant")
	require.NoError(t, err)
	assert.NotEqual(t, "orig", result.SessionID)
	assert.Equal(t, schema.SessionStatusSucceeded, result.Status)
	assert.Contains(t, result.FinalSource, "B -> C")

	sess, err := st.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, schema.SessionKindRefine, sess.Kind)
}

func TestService_RefineMissingSession(t *testing.T) {
	svc := newService(t, &scriptedAgent{}, &fakeRenderer{}, newMemStore())
	_, err := svc.Refine(context.Background(), "missing", "whatever")
	require.Error(t, err)
	var dfErr *schema.DiaforgeError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, schema.ErrCodeNotFound, dfErr.Code)
}

func TestService_RefineSessionWithoutSource(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.CreateSession(context.Background(), &store.Session{
		ID:     "empty",
		Kind:   schema.SessionKindGenerate,
		Status: schema.SessionStatusFailed,
	}))
	svc := newService(t, &scriptedAgent{}, &fakeRenderer{}, st)

	_, err := svc.Refine(context.Background(), "empty", "whatever")
	require.Error(t, err)
}

func TestService_SessionReturnsEvents(t *testing.T) {
	st := newMemStore()
	agentStub := &scriptedAgent{completion: "```plantuml\n@startuml\n@enduml\n```"}
	renderer := &fakeRenderer{results: []*render.Result{success("/out/e.png")}}
	svc := newService(t, agentStub, renderer, st)

	result, err := svc.Generate(context.Background(), []schema.Record{{ID: "A"}})
	require.NoError(t, err)

	sess, events, err := svc.Session(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, result.SessionID, sess.ID)
	assert.NotEmpty(t, events)
}
