// Package router implements the conversation routing state machine.
//
// A user's state is derived, never stored: idle (no conversation row),
// waiting (client row with no operator), invited (a pending invitation row on
// the operator side), or active (row with an operator assigned).
//
// # Concurrency
//
// The unit of mutual exclusion is the client id. Every transition touching a
// client's request or invitation set runs inside that client's critical
// section, and the store's conditional operator assignment is the commit
// point: of any number of racing acceptances exactly one succeeds, the rest
// observe ErrInvitationStale. Operator exclusivity across different clients'
// critical sections is backed by the store's unique operator constraint.
//
// Transport I/O (sending and retracting invitation messages) never runs
// while a critical section is held; retraction after a committed acceptance
// is best-effort.
package router
