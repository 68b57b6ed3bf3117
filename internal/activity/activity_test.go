package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/internal/model"
)

type memStore struct {
	entries []model.Activity
	err     error
}

func (m *memStore) LogActivity(ctx context.Context, a *model.Activity) error {
	if m.err != nil {
		return m.err
	}
	a.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *a)
	return nil
}

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *memWriter) Close() error { return nil }

func TestLog_StoresActorAndIP(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, logr.Discard())

	ctx := WithIP(context.Background(), "10.0.0.1")
	r.Log(ctx, &model.Account{ID: "u1", Email: "a@example.com"}, "create_record", "host1 A")

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.Equal(t, "u1", e.ActorID)
	assert.Equal(t, "a@example.com", e.ActorEmail)
	assert.Equal(t, "create_record", e.Action)
	assert.Equal(t, "10.0.0.1", e.IPAddress)
}

func TestLog_SystemActor(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, logr.Discard())

	r.Log(context.Background(), nil, "recount_all", "")
	require.Len(t, store.entries, 1)
	assert.Empty(t, store.entries[0].ActorID)
}

func TestLog_PublishesEvent(t *testing.T) {
	w := &memWriter{}
	r := &Recorder{store: &memStore{}, writer: w, log: logr.Discard()}

	r.Log(context.Background(), &model.Account{ID: "u1"}, "delete_record", "host1")

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u1"), w.msgs[0].Key)
	var got model.Activity
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "delete_record", got.Action)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestLog_FailuresAreSwallowed(t *testing.T) {
	w := &memWriter{err: errors.New("broker down")}
	r := &Recorder{store: &memStore{err: errors.New("db down")}, writer: w, log: logr.Discard()}

	assert.NotPanics(t, func() {
		r.Log(context.Background(), nil, "login", "")
	})
	assert.Len(t, w.msgs, 1)
}
