// ABOUTME: WebSocket session: frame protocol, read/write pumps, and command dispatch
// ABOUTME: Each connected user holds one session; commands drive the routing core

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/helpline-gateway/internal/mirror"
	"github.com/2389/helpline-gateway/internal/router"
	"github.com/2389/helpline-gateway/internal/store"
)

// Frame type constants. Inbound frames are commands from the user's front
// end; outbound frames are deliveries from the gateway.
const (
	// Inbound
	FrameRequest = "request" // ask for an operator
	FrameEnd     = "end"     // end conversation or cancel waiting
	FrameAccept  = "accept"  // operator accepts an invitation
	FrameDecline = "decline" // operator declines an invitation
	FrameStatus  = "status"  // query own state

	// Bidirectional
	FrameMessage = "message" // chat message (mirrored while active)

	// Outbound
	FrameInvitation = "invitation" // offer to pick up a waiting client
	FrameRetract    = "retract"    // remove a previously delivered message
	FrameNotice     = "notice"     // informational text from the gateway
	FrameWelcome    = "welcome"    // session opened, carries the local id
)

// Frame is the JSON message exchanged over a WebSocket session.
type Frame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`        // message id in this user's chat context
	Text     string `json:"text,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`  // local id of the replied-to message
	ClientID int64  `json:"client_id,omitempty"` // invitation target for accept/decline
	UserID   int64  `json:"user_id,omitempty"`   // own id (welcome) or counterpart (status)
	State    string `json:"state,omitempty"`     // idle / waiting / active
}

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	commandTimeout = 10 * time.Second
)

// session is one user's live WebSocket connection.
type session struct {
	gw     *Gateway
	userID store.UserID
	handle string
	conn   *websocket.Conn
	send   chan *Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(gw *Gateway, userID store.UserID, handle string, conn *websocket.Conn) *session {
	return &session{
		gw:     gw,
		userID: userID,
		handle: handle,
		conn:   conn,
		send:   make(chan *Frame, sessionBufferSize),
		done:   make(chan struct{}),
	}
}

// enqueue queues a frame for delivery. Non-blocking: a full buffer means the
// session is too slow and the send fails rather than stalling the caller.
func (s *session) enqueue(frame *Frame) error {
	select {
	case <-s.done:
		return ErrRecipientOffline
	default:
	}

	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full for user %d", s.userID)
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) sendWelcome() {
	_ = s.enqueue(&Frame{Type: FrameWelcome, UserID: int64(s.userID)})
}

// run starts the write pump and reads frames until the connection drops.
func (s *session) run() {
	go s.writePump()
	s.readPump()
	s.close()
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.gw.logger.Debug("write failed, closing session", "user_id", s.userID, "error", err)
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *session) readPump() {
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.gw.logger.Debug("unexpected close", "user_id", s.userID, "error", err)
			}
			return
		}
		s.handleFrame(&frame)
	}
}

// handleFrame dispatches one inbound frame. Every recoverable routing error
// maps to a user-facing notice; anything unexpected notifies the admins and
// keeps the session alive.
func (s *session) handleFrame(frame *Frame) {
	// Detached context: a command that reached the core should complete
	// even if the socket drops mid-operation.
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch frame.Type {
	case FrameRequest:
		err = s.handleRequest(ctx)
	case FrameEnd:
		err = s.handleEnd(ctx)
	case FrameAccept:
		err = s.handleAccept(ctx, store.UserID(frame.ClientID))
	case FrameDecline:
		err = s.handleDecline(ctx, store.UserID(frame.ClientID))
	case FrameMessage:
		err = s.handleMessage(ctx, frame)
	case FrameStatus:
		err = s.handleStatus(ctx)
	default:
		s.notice("Unsupported action.")
		return
	}

	if err != nil {
		s.gw.logger.Error("command failed",
			"user_id", s.userID,
			"type", frame.Type,
			"error", err)
		s.notice("Something went wrong. The administrators have been notified.")
		s.gw.notifyAdmins(ctx, fmt.Sprintf("command %q from %s failed: %v", frame.Type, userLabel(s.userID), err))
	}
}

func (s *session) handleRequest(ctx context.Context) error {
	invited, err := s.gw.router.RequestConversation(ctx, s.userID)
	if errors.Is(err, router.ErrAlreadyActiveOrWaiting) {
		s.notice("You are already in a conversation or waiting for one. Send \"end\" to leave first.")
		return nil
	}
	if err != nil {
		return err
	}

	if invited == 0 {
		s.notice("No operators are free right now. You will stay in the queue; send \"end\" to leave it.")
	} else {
		s.notice("Operators have been invited. Waiting for one to accept; send \"end\" to cancel.")
	}
	return nil
}

func (s *session) handleEnd(ctx context.Context) error {
	status, err := s.gw.router.StatusOf(ctx, s.userID)
	if err != nil {
		return err
	}

	switch status.State {
	case router.StateWaiting:
		if err := s.gw.router.CancelWaiting(ctx, s.userID); err != nil {
			return err
		}
		s.notice("Waiting cancelled. Send \"request\" to ask for an operator again.")
	case router.StateActive:
		ended, err := s.gw.router.EndConversation(ctx, s.userID)
		if errors.Is(err, router.ErrNotActive) {
			s.notice("The conversation has already ended.")
			return nil
		}
		if err != nil {
			return err
		}
		s.notice("Conversation ended. Send \"request\" to start a new one.")
		counterpart := ended.Counterpart(s.userID)
		if derr := s.gw.deliver(counterpart, &Frame{
			Type: FrameNotice,
			Text: fmt.Sprintf("%s ended the conversation.", userLabel(s.userID)),
		}); derr != nil && !errors.Is(derr, ErrRecipientOffline) {
			s.gw.logger.Warn("counterpart notification failed", "user_id", counterpart, "error", derr)
		}
	default:
		s.notice("You are not in a conversation. Send \"request\" to start one.")
	}
	return nil
}

func (s *session) handleAccept(ctx context.Context, clientID store.UserID) error {
	if clientID == 0 {
		s.notice("Missing client id.")
		return nil
	}

	conv, err := s.gw.router.AcceptInvitation(ctx, s.userID, clientID)
	if errors.Is(err, router.ErrInvitationStale) {
		s.notice("Someone else already took this conversation.")
		return nil
	}
	if err != nil {
		return err
	}

	s.notice(fmt.Sprintf("Conversation with %s started. Messages you send will reach them.", userLabel(conv.ClientID)))
	if derr := s.gw.deliver(conv.ClientID, &Frame{
		Type: FrameNotice,
		Text: fmt.Sprintf("Conversation with operator %s started. Messages you send will reach them.", userLabel(s.userID)),
	}); derr != nil && !errors.Is(derr, ErrRecipientOffline) {
		s.gw.logger.Warn("client notification failed", "user_id", conv.ClientID, "error", derr)
	}
	return nil
}

func (s *session) handleDecline(ctx context.Context, clientID store.UserID) error {
	if clientID == 0 {
		s.notice("Missing client id.")
		return nil
	}
	if err := s.gw.router.DeclineInvitation(ctx, s.userID, clientID); err != nil {
		return err
	}
	s.notice("Invitation declined.")
	return nil
}

func (s *session) handleMessage(ctx context.Context, frame *Frame) error {
	messageID := frame.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	// A retried frame with the same id must not be mirrored twice.
	if s.gw.dedupe.CheckAndMark(fmt.Sprintf("%d:%s", s.userID, messageID)) {
		s.gw.logger.Debug("duplicate message dropped", "user_id", s.userID, "message_id", messageID)
		return nil
	}

	_, err := s.gw.mirror.Forward(ctx, &mirror.ForwardRequest{
		SenderID:         s.userID,
		SenderMessageID:  messageID,
		Content:          frame.Text,
		ReplyToMessageID: frame.ReplyTo,
	})
	if errors.Is(err, mirror.ErrNoActiveConversation) {
		s.notice("You have no conversation partner right now. Send \"request\" to start one.")
		return nil
	}
	return err
}

func (s *session) handleStatus(ctx context.Context) error {
	status, err := s.gw.router.StatusOf(ctx, s.userID)
	if err != nil {
		return err
	}
	return s.enqueue(&Frame{
		Type:   FrameStatus,
		State:  string(status.State),
		UserID: int64(status.CounterpartID),
	})
}

func (s *session) notice(text string) {
	if err := s.enqueue(&Frame{Type: FrameNotice, Text: text}); err != nil {
		s.gw.logger.Debug("notice dropped", "user_id", s.userID, "error", err)
	}
}
