// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers users, conversation assignment, invitations, and message correlation

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func createTestUser(t *testing.T, store *SQLiteStore, handle string) UserID {
	t.Helper()
	user, err := store.CreateUser(context.Background(), handle)
	require.NoError(t, err)
	return user.ID
}

func createTestOperator(t *testing.T, store *SQLiteStore, handle string) UserID {
	t.Helper()
	id := createTestUser(t, store, handle)
	require.NoError(t, store.SetOperator(context.Background(), id, true))
	return id
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestCreateUser_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.CreateUser(ctx, "alice")
	require.NoError(t, err)

	second, err := store.CreateUser(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "alice", second.Handle)
	assert.False(t, second.Operator)
	assert.False(t, second.Admin)
}

func TestGetUser_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetUser(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByHandle(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetOperator(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id := createTestUser(t, store, "bob")
	require.NoError(t, store.SetOperator(ctx, id, true))

	user, err := store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.True(t, user.Operator)

	require.NoError(t, store.SetOperator(ctx, id, false))
	user, err = store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.False(t, user.Operator)
}

func TestSetOperator_UnknownUser(t *testing.T) {
	store := setupTestStore(t)

	err := store.SetOperator(context.Background(), 42, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAdmins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestUser(t, store, "regular")
	adminID := createTestUser(t, store, "boss")
	require.NoError(t, store.SetAdmin(ctx, adminID, true))

	admins, err := store.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, adminID, admins[0].ID)
	assert.True(t, admins[0].Admin)
}

func TestCreateConversationRequest_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	err := store.CreateConversationRequest(ctx, clientID)
	assert.ErrorIs(t, err, ErrConversationExists)
}

func TestAssignOperator(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	opID := createTestOperator(t, store, "op")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	assigned, err := store.AssignOperator(ctx, clientID, opID)
	require.NoError(t, err)
	assert.True(t, assigned)

	conv, err := store.GetConversation(ctx, clientID)
	require.NoError(t, err)
	require.NotNil(t, conv.OperatorID)
	assert.Equal(t, opID, *conv.OperatorID)
	assert.True(t, conv.Active())
	assert.NotNil(t, conv.AcceptedAt)
}

func TestAssignOperator_SecondAssignmentLoses(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	op1 := createTestOperator(t, store, "op1")
	op2 := createTestOperator(t, store, "op2")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	assigned, err := store.AssignOperator(ctx, clientID, op1)
	require.NoError(t, err)
	require.True(t, assigned)

	// The request is no longer waiting, so the second assignment is a no-op.
	assigned, err = store.AssignOperator(ctx, clientID, op2)
	require.NoError(t, err)
	assert.False(t, assigned)

	conv, err := store.GetConversation(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, op1, *conv.OperatorID)
}

func TestAssignOperator_OperatorBusy(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	client1 := createTestUser(t, store, "client1")
	client2 := createTestUser(t, store, "client2")
	opID := createTestOperator(t, store, "op")
	require.NoError(t, store.CreateConversationRequest(ctx, client1))
	require.NoError(t, store.CreateConversationRequest(ctx, client2))

	assigned, err := store.AssignOperator(ctx, client1, opID)
	require.NoError(t, err)
	require.True(t, assigned)

	// One active pairing per operator, enforced by the unique index.
	_, err = store.AssignOperator(ctx, client2, opID)
	assert.ErrorIs(t, err, ErrOperatorBusy)
}

func TestGetConversationByParticipant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	opID := createTestOperator(t, store, "op")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))
	_, err := store.AssignOperator(ctx, clientID, opID)
	require.NoError(t, err)

	fromClient, err := store.GetConversationByParticipant(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, fromClient.ClientID)

	fromOperator, err := store.GetConversationByParticipant(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, clientID, fromOperator.ClientID)
	assert.Equal(t, opID, fromOperator.Counterpart(clientID))
	assert.Equal(t, clientID, fromOperator.Counterpart(opID))

	idle := createTestUser(t, store, "idle")
	_, err = store.GetConversationByParticipant(ctx, idle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	conv, err := store.DeleteConversation(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, conv.ClientID)
	assert.False(t, conv.Active())

	_, err = store.GetConversation(ctx, clientID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.DeleteConversation(ctx, clientID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListWaitingClients(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	client1 := createTestUser(t, store, "client1")
	client2 := createTestUser(t, store, "client2")
	active := createTestUser(t, store, "active")
	opID := createTestOperator(t, store, "op")

	require.NoError(t, store.CreateConversationRequest(ctx, client1))
	require.NoError(t, store.CreateConversationRequest(ctx, client2))
	require.NoError(t, store.CreateConversationRequest(ctx, active))
	_, err := store.AssignOperator(ctx, active, opID)
	require.NoError(t, err)

	waiting, err := store.ListWaitingClients(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []UserID{client1, client2}, waiting)
}

func TestEligibleOperators(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	free := createTestOperator(t, store, "free")
	createTestUser(t, store, "bystander")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	// Busy operator: already paired with another client.
	busy := createTestOperator(t, store, "busy")
	otherClient := createTestUser(t, store, "other")
	require.NoError(t, store.CreateConversationRequest(ctx, otherClient))
	_, err := store.AssignOperator(ctx, otherClient, busy)
	require.NoError(t, err)

	// An operator waiting for help as a client is off the rota.
	crying := createTestOperator(t, store, "crying")
	require.NoError(t, store.CreateConversationRequest(ctx, crying))

	eligible, err := store.EligibleOperators(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, []UserID{free}, eligible)
}

func TestEligibleOperators_ExcludesClientAndInvited(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// The client is operator-capable but must never be invited to itself.
	clientID := createTestOperator(t, store, "client-op")
	require.NoError(t, store.CreateConversationRequest(ctx, clientID))

	invited := createTestOperator(t, store, "invited")
	fresh := createTestOperator(t, store, "fresh")

	created, err := store.CreateInvitation(ctx, &Invitation{
		OperatorID: invited,
		ClientID:   clientID,
		MessageID:  "m-1",
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)

	eligible, err := store.EligibleOperators(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, []UserID{fresh}, eligible)
}

func TestCreateInvitation_DuplicateReportsFalse(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	opID := createTestOperator(t, store, "op")
	clientID := createTestUser(t, store, "client")

	inv := &Invitation{OperatorID: opID, ClientID: clientID, MessageID: "m-1", CreatedAt: time.Now().UTC()}
	created, err := store.CreateInvitation(ctx, inv)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &Invitation{OperatorID: opID, ClientID: clientID, MessageID: "m-2", CreatedAt: time.Now().UTC()}
	created, err = store.CreateInvitation(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created, "second insert for the same pair should be a no-op")

	// The original message id survives.
	got, err := store.GetInvitation(ctx, opID, clientID)
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.MessageID)
}

func TestDeleteInvitation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	opID := createTestOperator(t, store, "op")
	clientID := createTestUser(t, store, "client")

	_, err := store.CreateInvitation(ctx, &Invitation{
		OperatorID: opID, ClientID: clientID, MessageID: "m-1", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	inv, err := store.DeleteInvitation(ctx, opID, clientID)
	require.NoError(t, err)
	assert.Equal(t, "m-1", inv.MessageID)

	_, err = store.DeleteInvitation(ctx, opID, clientID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInvitationsForClient_Except(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	clientID := createTestUser(t, store, "client")
	winner := createTestOperator(t, store, "winner")
	loser1 := createTestOperator(t, store, "loser1")
	loser2 := createTestOperator(t, store, "loser2")

	for i, op := range []UserID{winner, loser1, loser2} {
		_, err := store.CreateInvitation(ctx, &Invitation{
			OperatorID: op, ClientID: clientID,
			MessageID: string(rune('a' + i)), CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	removed, err := store.DeleteInvitationsForClient(ctx, clientID, winner)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	// The winner's row stays.
	_, err = store.GetInvitation(ctx, winner, clientID)
	require.NoError(t, err)
	_, err = store.GetInvitation(ctx, loser1, clientID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInvitationsForOperator(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	opID := createTestOperator(t, store, "op")
	client1 := createTestUser(t, store, "client1")
	client2 := createTestUser(t, store, "client2")

	for _, c := range []UserID{client1, client2} {
		_, err := store.CreateInvitation(ctx, &Invitation{
			OperatorID: opID, ClientID: c, MessageID: "m", CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	removed, err := store.DeleteInvitationsForOperator(ctx, opID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	removed, err = store.DeleteInvitationsForOperator(ctx, opID)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestListInvitationsOlderThan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	opID := createTestOperator(t, store, "op")
	client1 := createTestUser(t, store, "client1")
	client2 := createTestUser(t, store, "client2")

	_, err := store.CreateInvitation(ctx, &Invitation{
		OperatorID: opID, ClientID: client1, MessageID: "old",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = store.CreateInvitation(ctx, &Invitation{
		OperatorID: opID, ClientID: client2, MessageID: "new",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	stale, err := store.ListInvitationsOlderThan(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, client1, stale[0].ClientID)
}

func TestCorrelateMessage_BothDirections(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sender := createTestUser(t, store, "sender")
	receiver := createTestUser(t, store, "receiver")

	require.NoError(t, store.SaveMirroredMessage(ctx, &MirroredMessage{
		ID:                "mm-1",
		SenderID:          sender,
		SenderMessageID:   "s-100",
		ReceiverID:        receiver,
		ReceiverMessageID: "r-200",
		CreatedAt:         time.Now().UTC(),
	}))

	// From the sender's side.
	otherID, otherMsg, err := store.CorrelateMessage(ctx, sender, "s-100")
	require.NoError(t, err)
	assert.Equal(t, receiver, otherID)
	assert.Equal(t, "r-200", otherMsg)

	// From the receiver's side.
	otherID, otherMsg, err = store.CorrelateMessage(ctx, receiver, "r-200")
	require.NoError(t, err)
	assert.Equal(t, sender, otherID)
	assert.Equal(t, "s-100", otherMsg)

	_, _, err = store.CorrelateMessage(ctx, sender, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
