package domain

import "time"

// SessionStatus is the lifecycle state of a quiz session. Transitions only
// move forward: waiting -> active -> finished.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// Session is one play-through of a quiz, from creation to finish.
type Session struct {
	ID              string        `json:"id"`
	PIN             string        `json:"pin"`
	QuizID          string        `json:"quizId"`
	HostID          string        `json:"hostId"`
	Status          SessionStatus `json:"status"`
	CurrentQuestion int           `json:"currentQuestion"`
	Players         []*Player     `json:"players"` // join order
	CreatedAt       time.Time     `json:"createdAt"`
}

// Player returns the player with the given ID, or nil.
func (s *Session) Player(playerID string) *Player {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy so stores can hand out sessions without sharing
// mutable state with callers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		pc := *p
		pc.Answers = append([]PlayerAnswer(nil), p.Answers...)
		cp.Players[i] = &pc
	}
	return &cp
}

// Player is a participant in a session. Players are created on join and live
// for the session's lifetime; they are never removed, only disconnected.
type Player struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	SessionID   string         `json:"sessionId"`
	Score       int            `json:"score"`
	Answers     []PlayerAnswer `json:"answers"`
	IsConnected bool           `json:"isConnected"`
	JoinedAt    time.Time      `json:"joinedAt"`
}

// AnswerFor returns the player's answer for a question, if any.
func (p *Player) AnswerFor(questionID string) (PlayerAnswer, bool) {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return PlayerAnswer{}, false
}

// PlayerAnswer records a single scored submission. Points is 0 whenever
// IsCorrect is false.
type PlayerAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	TimeToAnswerMs int64  `json:"timeToAnswerMs"`
	IsCorrect      bool   `json:"isCorrect"`
	Points         int    `json:"points"`
}

// LeaderboardEntry is a snapshot-friendly view of a player's standing.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// PlayerResult is one player's outcome for a single question.
// SelectedOption is nil when the player never answered.
type PlayerResult struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	SelectedOption *int   `json:"selectedOption"`
	IsCorrect      bool   `json:"isCorrect"`
}

// QuestionResults is the computed per-question summary broadcast between
// questions. It is never persisted.
type QuestionResults struct {
	QuestionID    string             `json:"questionId"`
	CorrectOption int                `json:"correctOption"`
	Answers       []PlayerResult     `json:"answers"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

// GameResults is the computed final summary for a finished session.
type GameResults struct {
	SessionID        string             `json:"sessionId"`
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard"`
	TotalQuestions   int                `json:"totalQuestions"`
}

// Question models an MCQ question with exactly one correct option index.
type Question struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	BasePoints       int      `json:"basePoints"` // defaults to 1000 if zero
}

// Quiz is read-only content from the catalog.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	IsActive  bool       `json:"isActive"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given ID, or nil.
func (q Quiz) Question(questionID string) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return &q.Questions[i]
		}
	}
	return nil
}
