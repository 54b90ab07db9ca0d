package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

const (
	maxPlayerNameLen = 20
	maxPINAttempts   = 50
)

// SessionStore abstracts how sessions are persisted (in-memory, Redis, etc).
// Lookups return domain.ErrSessionNotFound when nothing matches. PINs are
// only resolvable for non-finished sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	FindByPIN(ctx context.Context, pin string) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	FindActive(ctx context.Context) ([]*domain.Session, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionManager owns all session, player, and answer mutation. Every
// read-modify-write runs under a per-session lock so the duplicate-answer and
// unique-name invariants hold when connections act concurrently.
type SessionManager struct {
	store   SessionStore
	quizzes QuizRepository
	clock   clockwork.Clock

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionManager(store SessionStore, quizzes QuizRepository, clock clockwork.Clock) *SessionManager {
	return &SessionManager{
		store:   store,
		quizzes: quizzes,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockSession serializes mutations for one session id.
func (m *SessionManager) lockSession(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// CreateSession starts a new waiting session for an active quiz and allocates
// a unique 6-digit PIN for players to join with.
func (m *SessionManager) CreateSession(ctx context.Context, quizID, hostID string) (*domain.Session, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsActive {
		return nil, fmt.Errorf("%w: quiz %q is not active", domain.ErrInvalidState, quizID)
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %q has no questions", domain.ErrInvalidState, quizID)
	}

	pin, err := m.uniquePIN(ctx)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		PIN:       pin,
		QuizID:    quizID,
		HostID:    hostID,
		Status:    domain.StatusWaiting,
		Players:   []*domain.Player{},
		CreatedAt: m.clock.Now(),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// uniquePIN draws random zero-padded 6-digit PINs until one is free among
// non-finished sessions.
func (m *SessionManager) uniquePIN(ctx context.Context) (string, error) {
	for i := 0; i < maxPINAttempts; i++ {
		m.rndMu.Lock()
		pin := fmt.Sprintf("%06d", m.rnd.Intn(1000000))
		m.rndMu.Unlock()

		_, err := m.store.FindByPIN(ctx, pin)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return pin, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a unique pin after %d attempts", maxPINAttempts)
}

// AddPlayer joins a player into a waiting session by PIN. Names are trimmed,
// limited to 20 characters, and must be unique case-insensitively.
func (m *SessionManager) AddPlayer(ctx context.Context, pin, name string) (*domain.Session, *domain.Player, error) {
	found, err := m.store.FindByPIN(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	unlock := m.lockSession(found.ID)
	defer unlock()

	session, err := m.store.FindByID(ctx, found.ID)
	if err != nil {
		return nil, nil, err
	}

	switch session.Status {
	case domain.StatusActive:
		return nil, nil, fmt.Errorf("%w: quiz is already in progress", domain.ErrInvalidState)
	case domain.StatusFinished:
		return nil, nil, fmt.Errorf("%w: quiz has ended", domain.ErrInvalidState)
	}

	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxPlayerNameLen {
		return nil, nil, fmt.Errorf("%w: name must be between 1 and %d characters", domain.ErrValidation, maxPlayerNameLen)
	}
	for _, p := range session.Players {
		if strings.EqualFold(p.Name, name) {
			return nil, nil, fmt.Errorf("%w: %q is already playing", domain.ErrDuplicateName, name)
		}
	}

	player := &domain.Player{
		ID:          uuid.NewString(),
		Name:        name,
		SessionID:   session.ID,
		IsConnected: true,
		JoinedAt:    m.clock.Now(),
	}
	session.Players = append(session.Players, player)
	if err := m.store.Update(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, player, nil
}

// StartSession moves a waiting session with at least one player to active.
func (m *SessionManager) StartSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusWaiting {
		return nil, fmt.Errorf("%w: quiz already started", domain.ErrInvalidState)
	}
	if len(session.Players) == 0 {
		return nil, fmt.Errorf("%w: cannot start without players", domain.ErrInvalidState)
	}

	session.Status = domain.StatusActive
	session.CurrentQuestion = 0
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitAnswer scores and records a player's answer. Exactly one answer per
// (player, question) is accepted; repeats fail with domain.ErrDuplicateAnswer
// and leave score and answer log untouched.
func (m *SessionManager) SubmitAnswer(ctx context.Context, sessionID, playerID, questionID string, selectedOption int, timeToAnswerMs int64) (domain.PlayerAnswer, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return domain.PlayerAnswer{}, err
	}
	quiz, err := m.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.PlayerAnswer{}, err
	}
	question := quiz.Question(questionID)
	if question == nil {
		return domain.PlayerAnswer{}, fmt.Errorf("%w: %q", domain.ErrQuestionNotFound, questionID)
	}
	player := session.Player(playerID)
	if player == nil {
		return domain.PlayerAnswer{}, fmt.Errorf("%w: %q", domain.ErrPlayerNotFound, playerID)
	}
	if _, ok := player.AnswerFor(questionID); ok {
		return domain.PlayerAnswer{}, fmt.Errorf("%w: question %q", domain.ErrDuplicateAnswer, questionID)
	}

	correct := selectedOption == question.CorrectIndex
	answer := domain.PlayerAnswer{
		QuestionID:     questionID,
		SelectedOption: selectedOption,
		TimeToAnswerMs: timeToAnswerMs,
		IsCorrect:      correct,
		Points:         Points(question.BasePoints, timeToAnswerMs, question.TimeLimitSeconds, correct),
	}
	player.Answers = append(player.Answers, answer)
	player.Score += answer.Points

	if err := m.store.Update(ctx, session); err != nil {
		return domain.PlayerAnswer{}, err
	}
	return answer, nil
}

// NextQuestion advances an active session, finishing it when the current
// question is the quiz's last. Advancing a finished session is rejected
// rather than silently re-applied.
func (m *SessionManager) NextQuestion(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	quiz, err := m.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domain.StatusFinished:
		return nil, fmt.Errorf("%w: quiz already finished", domain.ErrInvalidState)
	case domain.StatusWaiting:
		return nil, fmt.Errorf("%w: quiz has not started", domain.ErrInvalidState)
	}

	if session.CurrentQuestion >= len(quiz.Questions)-1 {
		session.Status = domain.StatusFinished
	} else {
		session.CurrentQuestion++
	}
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession forces a session to finished regardless of progress. It is
// idempotent once finished.
func (m *SessionManager) EndSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusFinished {
		return session, nil
	}
	session.Status = domain.StatusFinished
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetPlayerConnected flips a player's presence flag, typically when their
// connection drops or they rejoin.
func (m *SessionManager) SetPlayerConnected(ctx context.Context, sessionID, playerID string, connected bool) (*domain.Player, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	player := session.Player(playerID)
	if player == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrPlayerNotFound, playerID)
	}
	player.IsConnected = connected
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return player, nil
}

// GetSession returns the current session record.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()
	return m.store.FindByID(ctx, sessionID)
}

// CurrentQuestion returns the question the session currently points at.
func (m *SessionManager) CurrentQuestion(ctx context.Context, sessionID string) (domain.Question, error) {
	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	quiz, err := m.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	if session.CurrentQuestion < 0 || session.CurrentQuestion >= len(quiz.Questions) {
		return domain.Question{}, fmt.Errorf("%w: index %d", domain.ErrQuestionNotFound, session.CurrentQuestion)
	}
	return quiz.Questions[session.CurrentQuestion], nil
}

// GetQuestionResults computes the per-question summary: every player's pick
// (or unanswered) plus the current leaderboard.
func (m *SessionManager) GetQuestionResults(ctx context.Context, sessionID, questionID string) (domain.QuestionResults, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return domain.QuestionResults{}, err
	}
	quiz, err := m.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.QuestionResults{}, err
	}
	question := quiz.Question(questionID)
	if question == nil {
		return domain.QuestionResults{}, fmt.Errorf("%w: %q", domain.ErrQuestionNotFound, questionID)
	}

	answers := make([]domain.PlayerResult, 0, len(session.Players))
	for _, p := range session.Players {
		result := domain.PlayerResult{PlayerID: p.ID, Name: p.Name}
		if a, ok := p.AnswerFor(questionID); ok {
			selected := a.SelectedOption
			result.SelectedOption = &selected
			result.IsCorrect = a.IsCorrect
		}
		answers = append(answers, result)
	}

	return domain.QuestionResults{
		QuestionID:    questionID,
		CorrectOption: question.CorrectIndex,
		Answers:       answers,
		Leaderboard:   leaderboard(session),
	}, nil
}

// GetGameResults computes the final leaderboard for a session.
func (m *SessionManager) GetGameResults(ctx context.Context, sessionID string) (domain.GameResults, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	session, err := m.store.FindByID(ctx, sessionID)
	if err != nil {
		return domain.GameResults{}, err
	}
	quiz, err := m.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GameResults{}, err
	}
	return domain.GameResults{
		SessionID:        session.ID,
		FinalLeaderboard: leaderboard(session),
		TotalQuestions:   len(quiz.Questions),
	}, nil
}

// CleanupStale removes finished sessions older than the cutoff. Best-effort:
// storage errors are logged, never returned.
func (m *SessionManager) CleanupStale(ctx context.Context, age time.Duration) int {
	count, err := m.store.CleanupOlderThan(ctx, age)
	if err != nil {
		log.Warn().Err(err).Msg("session cleanup failed")
	}
	return count
}

// leaderboard sorts score-descending; the stable sort keeps join order for
// equal scores since Players is already in join order.
func leaderboard(session *domain.Session) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(session.Players))
	for _, p := range session.Players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
