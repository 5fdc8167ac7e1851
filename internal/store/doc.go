// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - User: Known chat participant with operator/admin capability flags
//   - Conversation: One client's request; operator_id NULL means waiting
//   - Invitation: Pending offer for an operator to pick up a waiting client
//   - MirroredMessage: Correlation between the two copies of a forwarded message
//
// # Invariants
//
// The conversations table enforces the core routing invariants at the schema
// level: one request per client (primary key), one active pairing per operator
// (unique index, NULLs distinct), and no self-pairing (check constraint).
// AssignOperator is the atomic race-resolution primitive: it only promotes a
// request whose operator_id is still NULL, so concurrent acceptances for the
// same client commit exactly once.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrConversationExists: Client already waiting or in a conversation
//   - ErrOperatorBusy: Operator assignment would create a second pairing
package store
