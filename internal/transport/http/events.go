package http

import (
	"encoding/json"

	"live-quiz-service/internal/domain"
)

// Inbound event types.
const (
	evCreateSession = "create-session"
	evJoin          = "join"
	evStartSession  = "start-session"
	evSubmitAnswer  = "submit-answer"
	evNextQuestion  = "next-question"
	evEndSession    = "end-session"
)

// Outbound event types.
const (
	evSessionCreated     = "session-created"
	evPlayerJoined       = "player-joined"
	evSessionStarted     = "session-started"
	evQuestionStarted    = "question-started"
	evQuestionEnded      = "question-ended"
	evGameEnded          = "game-ended"
	evAnswerReceived     = "answer-received"
	evAnswerSubmitted    = "answer-submitted"
	evPlayerDisconnected = "player-disconnected"
	evError              = "error"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type createSessionPayload struct {
	QuizID string `json:"quizId"`
}

type joinPayload struct {
	PIN        string `json:"pin"`
	PlayerName string `json:"playerName"`
}

type sessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

type submitAnswerPayload struct {
	SessionID      string `json:"sessionId"`
	PlayerID       string `json:"playerId"`
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	TimeToAnswerMs int64  `json:"timeToAnswerMs"`
}

// questionView is what clients see mid-game: the correct index is withheld.
type questionView struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

func viewOfQuestion(q domain.Question) questionView {
	return questionView{
		ID:               q.ID,
		Prompt:           q.Prompt,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
}

type sessionCreatedPayload struct {
	Session *domain.Session `json:"session"`
}

type playerJoinedPayload struct {
	Player *domain.Player `json:"player"`
}

type sessionStartedPayload struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
}

type questionStartedPayload struct {
	Question  questionView `json:"question"`
	TimeLimit int          `json:"timeLimit"`
}

type questionEndedPayload struct {
	Results domain.QuestionResults `json:"results"`
}

type gameEndedPayload struct {
	FinalResults domain.GameResults `json:"finalResults"`
}

type answerReceivedPayload struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
}

type answerSubmittedPayload struct {
	Answer domain.PlayerAnswer `json:"answer"`
}

type playerDisconnectedPayload struct {
	PlayerID string `json:"playerId"`
}

type errorPayload struct {
	Message string `json:"message"`
}
