package outbox

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueWritesPendingEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(sqlmock.AnyArg(), "topic-a", "key-1", []byte(`{"n":1}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = Enqueue(context.Background(), db, "topic-a", "key-1", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPendingAndMarkPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	conf, err := NewConf(db)
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events WHERE status = 'PENDING'")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "event_key", "payload", "created_at"}).
			AddRow("e1", "t", "k", []byte(`{}`), now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET status = 'DONE'")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	events, err := conf.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "k", events[0].Key)

	require.NoError(t, conf.MarkPublished(context.Background(), "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type memStore struct {
	pending []Event
	done    []string
}

func (m *memStore) FetchPending(_ context.Context, limit int) ([]Event, error) {
	var out []Event
	for _, e := range m.pending {
		if !contains(m.done, e.ID) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) MarkPublished(_ context.Context, id string) error {
	m.done = append(m.done, id)
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type fakePublisher struct {
	keys   []string
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, _, key string, _ []byte) error {
	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	store := &memStore{pending: []Event{{ID: "1", Key: "a"}, {ID: "2", Key: "b"}}}
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, time.Second)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, pub.keys)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayFlushStopsAtFirstFailure(t *testing.T) {
	store := &memStore{pending: []Event{{ID: "1", Key: "a"}, {ID: "2", Key: "b"}, {ID: "3", Key: "c"}}}
	pub := &fakePublisher{failOn: "b"}
	relay := NewRelay(store, pub, time.Second)

	n, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, store.done)

	pub.failOn = ""
	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c"}, pub.keys)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	relay := NewRelay(&memStore{}, &fakePublisher{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
