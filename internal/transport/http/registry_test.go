package http

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestNextQuestionBeforeStartRejected(t *testing.T) {
	ctx := context.Background()
	reg := newRegistryHarness(t, clockwork.NewFakeClock(), 5*time.Second)

	host := newTestConn("host1")
	reg.CreateSession(ctx, host, "quiz-2q")
	created := expectEvent(t, host, evSessionCreated).Payload.(sessionCreatedPayload)
	sessionID, pin := created.Session.ID, created.Session.PIN

	player := newTestConn("")
	reg.Join(ctx, player, pin, "Ana")
	expectEvent(t, player, evPlayerJoined)
	expectEvent(t, host, evPlayerJoined)

	// The session is still waiting; advancing must bounce to the host alone.
	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evError)
	expectQuiet(t, player)
}

func TestNextQuestionAfterEndRejected(t *testing.T) {
	ctx := context.Background()
	reg := newRegistryHarness(t, clockwork.NewFakeClock(), 5*time.Second)

	host := newTestConn("host1")
	reg.CreateSession(ctx, host, "quiz-2q")
	created := expectEvent(t, host, evSessionCreated).Payload.(sessionCreatedPayload)
	sessionID := created.Session.ID

	reg.Start(ctx, host, sessionID)
	expectEvent(t, host, evSessionStarted)
	expectEvent(t, host, evQuestionStarted)

	reg.End(ctx, host, sessionID)
	expectEvent(t, host, evGameEnded)

	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evError)
	expectQuiet(t, host)
}

func TestBindMovesConnectionBetweenRooms(t *testing.T) {
	ctx := context.Background()
	reg := newRegistryHarness(t, clockwork.NewFakeClock(), 5*time.Second)

	hostA := newTestConn("hostA")
	reg.CreateSession(ctx, hostA, "quiz-2q")
	createdA := expectEvent(t, hostA, evSessionCreated).Payload.(sessionCreatedPayload)
	pinA, sessionA := createdA.Session.PIN, createdA.Session.ID

	hostB := newTestConn("hostB")
	reg.CreateSession(ctx, hostB, "quiz-2q")
	pinB := expectEvent(t, hostB, evSessionCreated).Payload.(sessionCreatedPayload).Session.PIN

	// The same connection joins session A, then switches to session B.
	mover := newTestConn("")
	reg.Join(ctx, mover, pinA, "Ana")
	expectEvent(t, mover, evPlayerJoined)
	expectEvent(t, hostA, evPlayerJoined)

	reg.Join(ctx, mover, pinB, "Ana")
	expectEvent(t, mover, evPlayerJoined)
	expectEvent(t, hostB, evPlayerJoined)

	reg.mu.Lock()
	if rm, ok := reg.rooms[sessionA]; ok {
		if _, stale := rm.conns[mover]; stale {
			reg.mu.Unlock()
			t.Fatalf("connection still subscribed to its previous room")
		}
	}
	reg.mu.Unlock()

	// Traffic in the old room must no longer reach the moved connection.
	other := newTestConn("")
	reg.Join(ctx, other, pinA, "Bob")
	expectEvent(t, other, evPlayerJoined)
	expectEvent(t, hostA, evPlayerJoined)
	expectQuiet(t, mover)
}

func TestAdvanceCompletesAndAllowsNext(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	reg := newRegistryHarness(t, clock, 5*time.Second)

	host := newTestConn("host1")
	reg.CreateSession(ctx, host, "quiz-2q")
	created := expectEvent(t, host, evSessionCreated).Payload.(sessionCreatedPayload)
	sessionID := created.Session.ID

	reg.Start(ctx, host, sessionID)
	expectEvent(t, host, evSessionStarted)
	expectEvent(t, host, evQuestionStarted)

	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evQuestionEnded)

	// Until the transition lands the advance stays pending.
	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evError)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	started := expectEvent(t, host, evQuestionStarted).Payload.(questionStartedPayload)
	if started.Question.ID != "q2" {
		t.Fatalf("expected q2 after the grace window, got %s", started.Question.ID)
	}

	// A completed advance must not leave a stale pending flag behind.
	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evQuestionEnded)
	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	expectEvent(t, host, evGameEnded)
}

func TestEndCancelsPendingAdvance(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	reg := newRegistryHarness(t, clock, 5*time.Second)

	host := newTestConn("host1")
	reg.CreateSession(ctx, host, "quiz-2q")
	created := expectEvent(t, host, evSessionCreated).Payload.(sessionCreatedPayload)
	sessionID := created.Session.ID

	reg.Start(ctx, host, sessionID)
	expectEvent(t, host, evSessionStarted)
	expectEvent(t, host, evQuestionStarted)

	reg.NextQuestion(ctx, host, sessionID)
	expectEvent(t, host, evQuestionEnded)

	reg.End(ctx, host, sessionID)
	expectEvent(t, host, evGameEnded)
	expectQuiet(t, host)
}

func newRegistryHarness(t *testing.T, clock clockwork.Clock, graceWindow time.Duration) *ConnectionRegistry {
	t.Helper()
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(pairQuizzes()), time.Minute)
	manager := app.NewSessionManager(store, quizRepo, clock)
	return NewConnectionRegistry(manager, clock, graceWindow)
}

func newTestConn(clientID string) *connection {
	return &connection{clientID: clientID, send: make(chan outboundMessage, 16)}
}

func pairQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-2q": {
			ID:       "quiz-2q",
			Title:    "Doubleheader",
			IsActive: true,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "First?", Options: []string{"a", "b"}, CorrectIndex: 0, TimeLimitSeconds: 30, BasePoints: 1000},
				{ID: "q2", Prompt: "Second?", Options: []string{"a", "b"}, CorrectIndex: 1, TimeLimitSeconds: 30, BasePoints: 1000},
			},
		},
	}
}

func expectEvent(t *testing.T, c *connection, want string) outboundMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		if msg.Type != want {
			t.Fatalf("expected %s, got %s (%+v)", want, msg.Type, msg.Payload)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
		return outboundMessage{}
	}
}

func expectQuiet(t *testing.T, c *connection) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected %s event (%+v)", msg.Type, msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}
