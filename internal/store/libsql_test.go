package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atessari/diaforge/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedSession(t *testing.T, s *LibSQLStore, status schema.SessionStatus) *Session {
	t.Helper()
	sess := &Session{
		ID:     uuid.New().String(),
		Kind:   schema.SessionKindGenerate,
		Status: status,
		Source: "@startuml\n@enduml",
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := seedSession(t, s, schema.SessionStatusPending)

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, schema.SessionKindGenerate, got.Kind)
	assert.Equal(t, schema.SessionStatusPending, got.Status)
	assert.Equal(t, "@startuml\n@enduml", got.Source)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	var dfErr *schema.DiaforgeError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, schema.ErrCodeNotFound, dfErr.Code)
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := seedSession(t, s, schema.SessionStatusRendering)

	status := schema.SessionStatusSucceeded
	image := "/out/diagram.png"
	renders := 2
	repairs := 1
	now := time.Now().UTC()
	require.NoError(t, s.UpdateSession(ctx, created.ID, SessionUpdate{
		Status:      &status,
		ImagePath:   &image,
		Renders:     &renders,
		Repairs:     &repairs,
		CompletedAt: &now,
	}))

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.SessionStatusSucceeded, got.Status)
	assert.Equal(t, "/out/diagram.png", got.ImagePath)
	assert.Equal(t, 2, got.Renders)
	assert.Equal(t, 1, got.Repairs)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	status := schema.SessionStatusFailed
	err := s.UpdateSession(context.Background(), "missing", SessionUpdate{Status: &status})
	require.Error(t, err)
}

func TestUpdateSession_NoFieldsIsNoop(t *testing.T) {
	s := newTestStore(t)
	created := seedSession(t, s, schema.SessionStatusPending)
	require.NoError(t, s.UpdateSession(context.Background(), created.ID, SessionUpdate{}))
}

func TestListSessions_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, schema.SessionStatusSucceeded)
	seedSession(t, s, schema.SessionStatusSucceeded)
	seedSession(t, s, schema.SessionStatusExhausted)

	succeeded, err := s.ListSessions(ctx, SessionFilter{Status: schema.SessionStatusSucceeded})
	require.NoError(t, err)
	assert.Len(t, succeeded, 2)

	limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, s, schema.SessionStatusRendering)

	payload, _ := json.Marshal(map[string]any{"exit_status": 200})
	require.NoError(t, s.AppendEvent(ctx, &Event{SessionID: sess.ID, Type: schema.EventRenderFailed, Payload: payload}))
	require.NoError(t, s.AppendEvent(ctx, &Event{SessionID: sess.ID, Type: schema.EventRepairInvoked}))

	events, err := s.GetEvents(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, schema.EventRenderFailed, events[0].Type)
	assert.JSONEq(t, `{"exit_status":200}`, string(events[0].Payload))
	assert.Equal(t, schema.EventRepairInvoked, events[1].Type)
}

func TestPruneSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := seedSession(t, s, schema.SessionStatusSucceeded)
	past := time.Now().UTC().Add(-48 * time.Hour)
	status := schema.SessionStatusSucceeded
	require.NoError(t, s.UpdateSession(ctx, old.ID, SessionUpdate{Status: &status, CompletedAt: &past}))
	require.NoError(t, s.AppendEvent(ctx, &Event{SessionID: old.ID, Type: schema.EventSessionSucceeded}))

	recent := seedSession(t, s, schema.SessionStatusSucceeded)
	now := time.Now().UTC()
	require.NoError(t, s.UpdateSession(ctx, recent.ID, SessionUpdate{Status: &status, CompletedAt: &now}))

	running := seedSession(t, s, schema.SessionStatusRendering)

	pruned, err := s.PruneSessions(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = s.GetSession(ctx, old.ID)
	require.Error(t, err)
	_, err = s.GetSession(ctx, recent.ID)
	require.NoError(t, err)
	_, err = s.GetSession(ctx, running.ID)
	require.NoError(t, err)

	events, err := s.GetEvents(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}
