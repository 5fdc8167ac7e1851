// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/conversation/invitation/mirror persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
//
// The conversations table carries the core invariants:
//   - PRIMARY KEY (client_id): one request per client
//   - UNIQUE (operator_id): one active pairing per operator (NULLs are
//     distinct, so any number of waiting requests coexist)
//   - CHECK (client_id != operator_id): no self-pairing
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			handle      TEXT NOT NULL UNIQUE,
			is_operator INTEGER NOT NULL DEFAULT 0,
			is_admin    INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_operator ON users(is_operator);
		CREATE INDEX IF NOT EXISTS idx_users_admin ON users(is_admin);

		CREATE TABLE IF NOT EXISTS conversations (
			client_id   INTEGER PRIMARY KEY,
			operator_id INTEGER UNIQUE,
			created_at  TEXT NOT NULL,
			accepted_at TEXT,

			CHECK (client_id != operator_id),
			FOREIGN KEY (client_id) REFERENCES users(local_id),
			FOREIGN KEY (operator_id) REFERENCES users(local_id)
		);

		CREATE TABLE IF NOT EXISTS invitations (
			operator_id INTEGER NOT NULL,
			client_id   INTEGER NOT NULL,
			message_id  TEXT NOT NULL,
			created_at  TEXT NOT NULL,

			PRIMARY KEY (operator_id, client_id),
			FOREIGN KEY (operator_id) REFERENCES users(local_id),
			FOREIGN KEY (client_id) REFERENCES users(local_id)
		);

		CREATE INDEX IF NOT EXISTS idx_invitations_client ON invitations(client_id);
		CREATE INDEX IF NOT EXISTS idx_invitations_created ON invitations(created_at);

		CREATE TABLE IF NOT EXISTS mirrored_messages (
			id                  TEXT PRIMARY KEY,
			sender_id           INTEGER NOT NULL,
			sender_message_id   TEXT NOT NULL,
			receiver_id         INTEGER NOT NULL,
			receiver_message_id TEXT NOT NULL,
			created_at          TEXT NOT NULL,

			FOREIGN KEY (sender_id) REFERENCES users(local_id),
			FOREIGN KEY (receiver_id) REFERENCES users(local_id)
		);

		CREATE INDEX IF NOT EXISTS idx_mirrored_sender
			ON mirrored_messages(sender_id, sender_message_id);
		CREATE INDEX IF NOT EXISTS idx_mirrored_receiver
			ON mirrored_messages(receiver_id, receiver_message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateUser registers a user by handle. The operation is idempotent: if the
// handle is already known, the existing row is returned unchanged.
func (s *SQLiteStore) CreateUser(ctx context.Context, handle string) (*User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (handle, is_operator, is_admin, created_at)
		VALUES (?, 0, 0, ?)
		ON CONFLICT (handle) DO NOTHING
	`, handle, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	user, err := s.GetUserByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("registered user", "id", user.ID, "handle", handle)
	return user, nil
}

// GetUser retrieves a user by local id.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id UserID) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_id, handle, is_operator, is_admin, created_at
		FROM users
		WHERE local_id = ?
	`, id)
	return scanUser(row)
}

// GetUserByHandle retrieves a user by external chat handle.
// Returns ErrNotFound if the handle is unknown.
func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_id, handle, is_operator, is_admin, created_at
		FROM users
		WHERE handle = ?
	`, handle)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var createdAtStr string

	err := row.Scan(&user.ID, &user.Handle, &user.Operator, &user.Admin, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// SetOperator updates the operator capability flag.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetOperator(ctx context.Context, id UserID, operator bool) error {
	return s.setUserFlag(ctx, id, "is_operator", operator)
}

// SetAdmin updates the admin flag.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetAdmin(ctx context.Context, id UserID, admin bool) error {
	return s.setUserFlag(ctx, id, "is_admin", admin)
}

func (s *SQLiteStore) setUserFlag(ctx context.Context, id UserID, column string, value bool) error {
	// column is one of the two fixed flag names, never caller input
	query := fmt.Sprintf("UPDATE users SET %s = ? WHERE local_id = ?", column)

	result, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated user flag", "id", id, "flag", column, "value", value)
	return nil
}

// ListAdmins returns all users with the admin flag set.
func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, handle, is_operator, is_admin, created_at
		FROM users
		WHERE is_admin = 1
		ORDER BY local_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer rows.Close()

	var admins []*User
	for rows.Next() {
		var user User
		var createdAtStr string
		if err := rows.Scan(&user.ID, &user.Handle, &user.Operator, &user.Admin, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning admin row: %w", err)
		}
		user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		admins = append(admins, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin rows: %w", err)
	}
	return admins, nil
}

// CreateConversationRequest creates a waiting conversation row for the client.
// Returns ErrConversationExists if the client already has a waiting or active
// conversation.
func (s *SQLiteStore) CreateConversationRequest(ctx context.Context, clientID UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (client_id, operator_id, created_at)
		VALUES (?, NULL, ?)
	`, clientID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrConversationExists
		}
		return fmt.Errorf("inserting conversation request: %w", err)
	}

	s.logger.Debug("created conversation request", "client_id", clientID)
	return nil
}

// AssignOperator atomically promotes a waiting conversation to active. This is
// the race-resolution primitive: the UPDATE only matches while operator_id is
// still NULL, so of any number of concurrent assignments for the same client
// exactly one reports true. Returns false if the request is no longer waiting.
// Returns ErrOperatorBusy if the operator already holds an active conversation.
func (s *SQLiteStore) AssignOperator(ctx context.Context, clientID, operatorID UserID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET operator_id = ?, accepted_at = ?
		WHERE client_id = ? AND operator_id IS NULL
	`, operatorID, time.Now().UTC().Format(time.RFC3339), clientID)
	if err != nil {
		if isConstraintViolation(err) {
			return false, ErrOperatorBusy
		}
		return false, fmt.Errorf("assigning operator: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("assigned operator", "client_id", clientID, "operator_id", operatorID)
	return true, nil
}

// GetConversation retrieves the conversation whose client is the given user.
// Returns ErrNotFound if the client has no conversation row.
func (s *SQLiteStore) GetConversation(ctx context.Context, clientID UserID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, operator_id, created_at, accepted_at
		FROM conversations
		WHERE client_id = ?
	`, clientID)
	return scanConversation(row)
}

// GetConversationByParticipant retrieves the conversation in which the given
// user takes part in either role. Returns ErrNotFound if the user is idle.
func (s *SQLiteStore) GetConversationByParticipant(ctx context.Context, userID UserID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, operator_id, created_at, accepted_at
		FROM conversations
		WHERE client_id = ? OR operator_id = ?
	`, userID, userID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var operatorID sql.NullInt64
	var createdAtStr string
	var acceptedAtStr sql.NullString

	err := row.Scan(&conv.ClientID, &operatorID, &createdAtStr, &acceptedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if operatorID.Valid {
		id := UserID(operatorID.Int64)
		conv.OperatorID = &id
	}
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if acceptedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, acceptedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing accepted_at: %w", err)
		}
		conv.AcceptedAt = &t
	}

	return &conv, nil
}

// DeleteConversation removes the client's conversation row and returns it.
// Returns ErrNotFound if the client has no conversation.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, clientID UserID) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT client_id, operator_id, created_at, accepted_at
		FROM conversations
		WHERE client_id = ?
	`, clientID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE client_id = ?`, clientID); err != nil {
		return nil, fmt.Errorf("deleting conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted conversation", "client_id", clientID, "active", conv.Active())
	return conv, nil
}

// ListWaitingClients returns clients whose conversation requests have no
// operator yet, oldest first.
func (s *SQLiteStore) ListWaitingClients(ctx context.Context) ([]UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id
		FROM conversations
		WHERE operator_id IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying waiting clients: %w", err)
	}
	defer rows.Close()

	var clients []UserID
	for rows.Next() {
		var id UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning waiting client: %w", err)
		}
		clients = append(clients, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating waiting client rows: %w", err)
	}
	return clients, nil
}

// EligibleOperators returns operators who should receive an invitation to the
// given client: operator-capable users who are not the client themselves, are
// in no conversation in either role (which also excludes "crying" operators
// currently acting as clients), and do not already hold an invitation for
// this client.
func (s *SQLiteStore) EligibleOperators(ctx context.Context, clientID UserID) ([]UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT users.local_id
		FROM users
			LEFT OUTER JOIN conversations ON users.local_id = conversations.operator_id
				OR users.local_id = conversations.client_id
			LEFT OUTER JOIN invitations ON users.local_id = invitations.operator_id
				AND invitations.client_id = ?
		WHERE users.is_operator = 1
			AND users.local_id != ?
			AND conversations.client_id IS NULL
			AND invitations.client_id IS NULL
		ORDER BY users.local_id
	`, clientID, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying eligible operators: %w", err)
	}
	defer rows.Close()

	var operators []UserID
	for rows.Next() {
		var id UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning eligible operator: %w", err)
		}
		operators = append(operators, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating eligible operator rows: %w", err)
	}
	return operators, nil
}

// CreateInvitation records a sent invitation. At most one invitation exists
// per (operator, client) pair; if one is already recorded the insert is a
// no-op and false is returned so the caller can retract the duplicate
// transport message instead of leaking it.
func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *Invitation) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (operator_id, client_id, message_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (operator_id, client_id) DO NOTHING
	`, inv.OperatorID, inv.ClientID, inv.MessageID,
		inv.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("inserting invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("created invitation", "operator_id", inv.OperatorID, "client_id", inv.ClientID)
	return true, nil
}

// GetInvitation retrieves the invitation for an (operator, client) pair.
// Returns ErrNotFound if no invitation is pending.
func (s *SQLiteStore) GetInvitation(ctx context.Context, operatorID, clientID UserID) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT operator_id, client_id, message_id, created_at
		FROM invitations
		WHERE operator_id = ? AND client_id = ?
	`, operatorID, clientID)

	var inv Invitation
	var createdAtStr string
	err := row.Scan(&inv.OperatorID, &inv.ClientID, &inv.MessageID, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning invitation: %w", err)
	}

	inv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &inv, nil
}

// DeleteInvitation removes one invitation and returns it.
// Returns ErrNotFound if the invitation doesn't exist.
func (s *SQLiteStore) DeleteInvitation(ctx context.Context, operatorID, clientID UserID) (*Invitation, error) {
	invs, err := s.deleteInvitations(ctx,
		`operator_id = ? AND client_id = ?`, operatorID, clientID)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, ErrNotFound
	}
	return invs[0], nil
}

// DeleteInvitationsForClient removes all invitations for a waiting client,
// except the one held by exceptOperatorID (pass 0 to remove all), and returns
// the removed rows so their transport messages can be retracted.
func (s *SQLiteStore) DeleteInvitationsForClient(ctx context.Context, clientID UserID, exceptOperatorID UserID) ([]*Invitation, error) {
	return s.deleteInvitations(ctx,
		`client_id = ? AND operator_id != ?`, clientID, exceptOperatorID)
}

// DeleteInvitationsForOperator removes all invitations addressed to an
// operator and returns the removed rows.
func (s *SQLiteStore) DeleteInvitationsForOperator(ctx context.Context, operatorID UserID) ([]*Invitation, error) {
	return s.deleteInvitations(ctx, `operator_id = ?`, operatorID)
}

// deleteInvitations selects and deletes invitation rows matching the
// condition inside one transaction, returning the deleted rows.
func (s *SQLiteStore) deleteInvitations(ctx context.Context, condition string, args ...any) ([]*Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT operator_id, client_id, message_id, created_at
		FROM invitations
		WHERE `+condition, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invitations: %w", err)
	}

	var invs []*Invitation
	for rows.Next() {
		var inv Invitation
		var createdAtStr string
		if err := rows.Scan(&inv.OperatorID, &inv.ClientID, &inv.MessageID, &createdAtStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		inv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		invs = append(invs, &inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating invitation rows: %w", err)
	}
	rows.Close()

	if len(invs) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE `+condition, args...); err != nil {
		return nil, fmt.Errorf("deleting invitations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted invitations", "count", len(invs))
	return invs, nil
}

// ListInvitationsOlderThan returns invitations created before the cutoff.
// Used by the expiry sweeper to decline timed-out invitations.
func (s *SQLiteStore) ListInvitationsOlderThan(ctx context.Context, cutoff time.Time) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operator_id, client_id, message_id, created_at
		FROM invitations
		WHERE created_at < ?
		ORDER BY created_at
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying stale invitations: %w", err)
	}
	defer rows.Close()

	var invs []*Invitation
	for rows.Next() {
		var inv Invitation
		var createdAtStr string
		if err := rows.Scan(&inv.OperatorID, &inv.ClientID, &inv.MessageID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		inv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		invs = append(invs, &inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitation rows: %w", err)
	}
	return invs, nil
}

// SaveMirroredMessage records one forward event correlating the sender's copy
// of a message with the receiver's copy.
func (s *SQLiteStore) SaveMirroredMessage(ctx context.Context, msg *MirroredMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirrored_messages (id, sender_id, sender_message_id, receiver_id, receiver_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.SenderMessageID, msg.ReceiverID, msg.ReceiverMessageID,
		msg.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting mirrored message: %w", err)
	}

	s.logger.Debug("saved mirrored message",
		"id", msg.ID,
		"sender_id", msg.SenderID,
		"receiver_id", msg.ReceiverID)
	return nil
}

// CorrelateMessage resolves a message id local to one participant into the
// counterpart's user id and message id. A single stored row answers the
// lookup from either side. Returns ErrNotFound on a miss.
func (s *SQLiteStore) CorrelateMessage(ctx context.Context, userID UserID, localMessageID string) (UserID, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT receiver_id, receiver_message_id
		FROM mirrored_messages
		WHERE sender_id = ? AND sender_message_id = ?
		UNION ALL
		SELECT sender_id, sender_message_id
		FROM mirrored_messages
		WHERE receiver_id = ? AND receiver_message_id = ?
		LIMIT 1
	`, userID, localMessageID, userID, localMessageID)

	var otherID UserID
	var otherMessageID string
	err := row.Scan(&otherID, &otherMessageID)
	if err == sql.ErrNoRows {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("correlating message: %w", err)
	}

	return otherID, otherMessageID, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
