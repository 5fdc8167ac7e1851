// ABOUTME: Tests for the invitation tracker
// ABOUTME: Covers broadcast recording, duplicate retraction, and invalidation

package invite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpline-gateway/internal/store"
)

// fakeMessenger records sends and retractions in memory.
type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      map[string]store.UserID // message id -> operator
	retracted []string
	failFor   map[store.UserID]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sent:    make(map[string]store.UserID),
		failFor: make(map[store.UserID]bool),
	}
}

func (m *fakeMessenger) SendInvitation(ctx context.Context, operatorID, clientID store.UserID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[operatorID] {
		return "", errors.New("delivery failed")
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.sent[id] = operatorID
	return id, nil
}

func (m *fakeMessenger) Retract(ctx context.Context, userID store.UserID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retracted = append(m.retracted, messageID)
	return nil
}

func (m *fakeMessenger) retractedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.retracted...)
}

func setupTracker(t *testing.T) (*Tracker, *fakeMessenger, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})

	messenger := newFakeMessenger()
	return New(st, messenger, nil), messenger, st
}

func seedUsers(t *testing.T, st *store.SQLiteStore, handles ...string) []store.UserID {
	t.Helper()
	ids := make([]store.UserID, 0, len(handles))
	for _, h := range handles {
		user, err := st.CreateUser(context.Background(), h)
		require.NoError(t, err)
		ids = append(ids, user.ID)
	}
	return ids
}

func TestBroadcast_RecordsEachInvitation(t *testing.T) {
	tracker, messenger, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op1", "op2")
	client, op1, op2 := ids[0], ids[1], ids[2]

	sent, err := tracker.Broadcast(ctx, client, []store.UserID{op1, op2})
	require.NoError(t, err)
	require.Len(t, sent, 2)

	for _, inv := range sent {
		got, err := st.GetInvitation(ctx, inv.OperatorID, client)
		require.NoError(t, err)
		assert.Equal(t, inv.MessageID, got.MessageID)
	}
	assert.Empty(t, messenger.retractedIDs())
}

func TestBroadcast_DuplicateRetractsExtraMessage(t *testing.T) {
	tracker, messenger, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op")
	client, op := ids[0], ids[1]

	first, err := tracker.Broadcast(ctx, client, []store.UserID{op})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The operator already holds an invitation for this client: the second
	// message goes out, hits the existing row, and is pulled back.
	second, err := tracker.Broadcast(ctx, client, []store.UserID{op})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, messenger.retractedIDs(), 1)

	got, err := st.GetInvitation(ctx, op, client)
	require.NoError(t, err)
	assert.Equal(t, first[0].MessageID, got.MessageID)
}

func TestBroadcast_SendFailureSkipsOperator(t *testing.T) {
	tracker, messenger, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "offline", "online")
	client, offline, online := ids[0], ids[1], ids[2]
	messenger.failFor[offline] = true

	sent, err := tracker.Broadcast(ctx, client, []store.UserID{offline, online})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, online, sent[0].OperatorID)

	_, err = st.GetInvitation(ctx, offline, client)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvalidate_SparesWinner(t *testing.T) {
	tracker, _, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "winner", "loser1", "loser2")
	client, winner := ids[0], ids[1]

	_, err := tracker.Broadcast(ctx, client, ids[1:])
	require.NoError(t, err)

	stale, err := tracker.Invalidate(ctx, client, winner)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	_, err = st.GetInvitation(ctx, winner, client)
	require.NoError(t, err)
}

func TestInvalidate_AllWhenNoWinner(t *testing.T) {
	tracker, _, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op1", "op2")
	client := ids[0]

	_, err := tracker.Broadcast(ctx, client, ids[1:])
	require.NoError(t, err)

	stale, err := tracker.Invalidate(ctx, client, 0)
	require.NoError(t, err)
	assert.Len(t, stale, 2)
}

func TestRemove_Idempotent(t *testing.T) {
	tracker, _, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op")
	client, op := ids[0], ids[1]

	_, err := tracker.Broadcast(ctx, client, []store.UserID{op})
	require.NoError(t, err)

	inv, err := tracker.Remove(ctx, op, client)
	require.NoError(t, err)
	require.NotNil(t, inv)

	inv, err = tracker.Remove(ctx, op, client)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

// wrappingStore annotates delete misses the way a decorated store would.
type wrappingStore struct {
	*store.SQLiteStore
}

func (s *wrappingStore) DeleteInvitation(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error) {
	inv, err := s.SQLiteStore.DeleteInvitation(ctx, operatorID, clientID)
	if err != nil {
		return nil, fmt.Errorf("deleting invitation: %w", err)
	}
	return inv, nil
}

func TestRemove_WrappedNotFound(t *testing.T) {
	_, messenger, st := setupTracker(t)
	tracker := New(&wrappingStore{st}, messenger, nil)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op")
	client, op := ids[0], ids[1]

	inv, err := tracker.Remove(ctx, op, client)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestRetract_PullsBackInvalidatedMessages(t *testing.T) {
	tracker, messenger, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client", "op1", "op2")
	client := ids[0]

	sent, err := tracker.Broadcast(ctx, client, ids[1:])
	require.NoError(t, err)

	stale, err := tracker.Invalidate(ctx, client, 0)
	require.NoError(t, err)
	tracker.Retract(ctx, stale)

	retracted := messenger.retractedIDs()
	require.Len(t, retracted, 2)
	for _, inv := range sent {
		assert.Contains(t, retracted, inv.MessageID)
	}
}

func TestDropForOperator(t *testing.T) {
	tracker, _, st := setupTracker(t)
	ctx := context.Background()

	ids := seedUsers(t, st, "client1", "client2", "op")
	client1, client2, op := ids[0], ids[1], ids[2]

	_, err := tracker.Broadcast(ctx, client1, []store.UserID{op})
	require.NoError(t, err)
	_, err = tracker.Broadcast(ctx, client2, []store.UserID{op})
	require.NoError(t, err)

	dropped, err := tracker.DropForOperator(ctx, op)
	require.NoError(t, err)
	assert.Len(t, dropped, 2)
}
