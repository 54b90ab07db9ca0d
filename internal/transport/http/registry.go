package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type connRole int

const (
	roleNone connRole = iota
	roleHost
	rolePlayer
)

// connection is one live websocket, owned by its ServeWS goroutine. Writes go
// through the send channel so only the writer goroutine touches the socket.
type connection struct {
	clientID  string
	send      chan outboundMessage
	role      connRole
	sessionID string
	playerID  string
}

func (c *connection) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("client", c.clientID).Str("event", msg.Type).Msg("dropping event for slow connection")
	}
}

func (c *connection) sendError(err error) {
	c.enqueue(outboundMessage{Type: evError, Payload: errorPayload{Message: err.Error()}})
}

func (c *connection) sendErrorMessage(msg string) {
	c.enqueue(outboundMessage{Type: evError, Payload: errorPayload{Message: msg}})
}

// room is the broadcast group for one session.
type room struct {
	conns map[*connection]struct{}

	// grace-window advance state; guarded by the registry mutex
	advancePending bool
	cancelAdvance  chan struct{}
}

// ConnectionRegistry bridges websocket connections and the SessionManager.
// It maps connections to their session identity, groups them into per-session
// rooms, and turns successful operations into broadcasts. Failures go back to
// the originator only, never the room.
type ConnectionRegistry struct {
	manager     *app.SessionManager
	clock       clockwork.Clock
	graceWindow time.Duration

	mu    sync.Mutex
	rooms map[string]*room
}

func NewConnectionRegistry(manager *app.SessionManager, clock clockwork.Clock, graceWindow time.Duration) *ConnectionRegistry {
	return &ConnectionRegistry{
		manager:     manager,
		clock:       clock,
		graceWindow: graceWindow,
		rooms:       make(map[string]*room),
	}
}

// bind associates a connection with a session and subscribes it to the
// session's room. A connection belongs to at most one room.
func (r *ConnectionRegistry) bind(c *connection, sessionID string, role connRole, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.sessionID != "" && c.sessionID != sessionID {
		r.leaveRoomLocked(c)
	}
	c.role = role
	c.sessionID = sessionID
	c.playerID = playerID
	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = &room{conns: make(map[*connection]struct{})}
		r.rooms[sessionID] = rm
	}
	rm.conns[c] = struct{}{}
}

// leaveRoomLocked drops the connection from its current room and tears the
// room down when it empties. Caller holds r.mu.
func (r *ConnectionRegistry) leaveRoomLocked(c *connection) {
	rm, ok := r.rooms[c.sessionID]
	if !ok {
		return
	}
	delete(rm.conns, c)
	if len(rm.conns) == 0 {
		if rm.cancelAdvance != nil {
			close(rm.cancelAdvance)
			rm.cancelAdvance = nil
		}
		delete(r.rooms, c.sessionID)
	}
}

func (r *ConnectionRegistry) broadcast(sessionID string, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return
	}
	msg := outboundMessage{Type: eventType, Payload: payload}
	for c := range rm.conns {
		c.enqueue(msg)
	}
}

// sendToHosts delivers an event to the session's host connections only.
func (r *ConnectionRegistry) sendToHosts(sessionID string, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return
	}
	msg := outboundMessage{Type: eventType, Payload: payload}
	for c := range rm.conns {
		if c.role == roleHost {
			c.enqueue(msg)
		}
	}
}

// CreateSession handles create-session: the connection becomes the session's
// host and joins its room.
func (r *ConnectionRegistry) CreateSession(ctx context.Context, c *connection, quizID string) {
	session, err := r.manager.CreateSession(ctx, quizID, c.clientID)
	if err != nil {
		c.sendError(err)
		return
	}
	r.bind(c, session.ID, roleHost, "")
	c.enqueue(outboundMessage{Type: evSessionCreated, Payload: sessionCreatedPayload{Session: session}})
}

// Join handles join: on success the connection is subscribed to the room and
// the whole room learns about the new player.
func (r *ConnectionRegistry) Join(ctx context.Context, c *connection, pin, playerName string) {
	session, player, err := r.manager.AddPlayer(ctx, pin, playerName)
	if err != nil {
		c.sendError(err)
		return
	}
	r.bind(c, session.ID, rolePlayer, player.ID)
	r.broadcast(session.ID, evPlayerJoined, playerJoinedPayload{Player: player})
}

// Start handles start-session: broadcasts the transition and the first question.
func (r *ConnectionRegistry) Start(ctx context.Context, c *connection, sessionID string) {
	session, err := r.manager.StartSession(ctx, sessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	r.broadcast(sessionID, evSessionStarted, sessionStartedPayload{SessionID: session.ID, Status: session.Status})

	question, err := r.manager.CurrentQuestion(ctx, sessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	r.broadcast(sessionID, evQuestionStarted, questionStartedPayload{
		Question:  viewOfQuestion(question),
		TimeLimit: question.TimeLimitSeconds,
	})
}

// SubmitAnswer handles submit-answer: the player gets a private ack with the
// scored answer; hosts only learn that the player answered.
func (r *ConnectionRegistry) SubmitAnswer(ctx context.Context, c *connection, p submitAnswerPayload) {
	answer, err := r.manager.SubmitAnswer(ctx, p.SessionID, p.PlayerID, p.QuestionID, p.SelectedOption, p.TimeToAnswerMs)
	if err != nil {
		c.sendError(err)
		return
	}
	c.enqueue(outboundMessage{Type: evAnswerSubmitted, Payload: answerSubmittedPayload{Answer: answer}})
	r.sendToHosts(p.SessionID, evAnswerReceived, answerReceivedPayload{
		PlayerID:   p.PlayerID,
		QuestionID: p.QuestionID,
	})
}

// NextQuestion handles next-question: broadcast the current question's
// results now, then advance after the grace window. A second next-question
// while the window is pending is rejected; ending the session cancels the
// pending advance.
func (r *ConnectionRegistry) NextQuestion(ctx context.Context, c *connection, sessionID string) {
	session, err := r.manager.GetSession(ctx, sessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	if session.Status != domain.StatusActive {
		c.sendError(fmt.Errorf("%w: quiz is not active", domain.ErrInvalidState))
		return
	}

	question, err := r.manager.CurrentQuestion(ctx, sessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	results, err := r.manager.GetQuestionResults(ctx, sessionID, question.ID)
	if err != nil {
		c.sendError(err)
		return
	}

	r.mu.Lock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		r.mu.Unlock()
		c.sendErrorMessage("no room for session")
		return
	}
	if rm.advancePending {
		r.mu.Unlock()
		c.sendErrorMessage("question advance already in progress")
		return
	}
	cancel := make(chan struct{})
	rm.advancePending = true
	rm.cancelAdvance = cancel
	r.mu.Unlock()

	r.broadcast(sessionID, evQuestionEnded, questionEndedPayload{Results: results})

	go r.advanceAfterGrace(sessionID, cancel)
}

func (r *ConnectionRegistry) advanceAfterGrace(sessionID string, cancel <-chan struct{}) {
	select {
	case <-r.clock.After(r.graceWindow):
	case <-cancel:
		return
	}

	// The pending flag stays up until the transition is applied, so a
	// next-question arriving between the timer firing and the advance still
	// bounces.
	ctx := context.Background()
	session, err := r.manager.NextQuestion(ctx, sessionID)
	r.clearAdvance(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("advance failed after grace window")
		return
	}

	if session.Status == domain.StatusFinished {
		r.broadcastGameEnded(ctx, sessionID)
		return
	}

	question, err := r.manager.CurrentQuestion(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("cannot load next question")
		return
	}
	r.broadcast(sessionID, evQuestionStarted, questionStartedPayload{
		Question:  viewOfQuestion(question),
		TimeLimit: question.TimeLimitSeconds,
	})
}

// End handles end-session: cancels any pending advance, finishes the session,
// and broadcasts the final results.
func (r *ConnectionRegistry) End(ctx context.Context, c *connection, sessionID string) {
	r.cancelPendingAdvance(sessionID)

	if _, err := r.manager.EndSession(ctx, sessionID); err != nil {
		c.sendError(err)
		return
	}
	r.broadcastGameEnded(ctx, sessionID)
}

func (r *ConnectionRegistry) clearAdvance(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[sessionID]; ok {
		rm.advancePending = false
		rm.cancelAdvance = nil
	}
}

func (r *ConnectionRegistry) cancelPendingAdvance(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return
	}
	if rm.cancelAdvance != nil {
		close(rm.cancelAdvance)
		rm.cancelAdvance = nil
		rm.advancePending = false
	}
}

func (r *ConnectionRegistry) broadcastGameEnded(ctx context.Context, sessionID string) {
	results, err := r.manager.GetGameResults(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("cannot compute game results")
		return
	}
	r.broadcast(sessionID, evGameEnded, gameEndedPayload{FinalResults: results})
}

// Disconnect removes a connection from its room, marks the player offline,
// and tells the room. The last connection leaving tears the room down along
// with any pending advance timer.
func (r *ConnectionRegistry) Disconnect(ctx context.Context, c *connection) {
	r.mu.Lock()
	sessionID, playerID := c.sessionID, c.playerID
	r.leaveRoomLocked(c)
	r.mu.Unlock()

	if playerID == "" {
		return
	}
	if _, err := r.manager.SetPlayerConnected(ctx, sessionID, playerID, false); err != nil {
		log.Debug().Err(err).Str("player", playerID).Msg("presence update on disconnect failed")
		return
	}
	r.broadcast(sessionID, evPlayerDisconnected, playerDisconnectedPayload{PlayerID: playerID})
}
