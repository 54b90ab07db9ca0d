package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no session matches the given id or PIN.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player id does not belong to the session.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidState rejects a transition the session's status does not allow.
	ErrInvalidState = errors.New("invalid session state")
	// ErrValidation rejects malformed input such as an empty or oversized name.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateName rejects a join with a name already taken in the session.
	ErrDuplicateName = errors.New("name already taken")
	// ErrDuplicateAnswer rejects a second answer for the same question.
	ErrDuplicateAnswer = errors.New("question already answered")
)
