package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// SessionStore persists sessions in Redis.
// Layout:
//   - SET session:{id}      -> JSON-encoded session, with TTL
//   - SET session:pin:{pin} -> session id, kept only while the session is not finished
//   - SADD sessions:index   -> all known session ids, for scans and cleanup
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, clock: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), raw, s.ttl)
	if session.Status != domain.StatusFinished {
		pipe.Set(ctx, s.pinKey(session.PIN), session.ID, s.ttl)
	}
	pipe.SAdd(ctx, s.indexKey(), session.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) FindByPIN(ctx context.Context, pin string) (*domain.Session, error) {
	id, err := s.client.Get(ctx, s.pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *SessionStore) Update(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), raw, s.ttl)
	// A finished session gives up its PIN so new sessions can reuse it.
	if session.Status == domain.StatusFinished {
		pipe.Del(ctx, s.pinKey(session.PIN))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	// Finished sessions release their PIN for reuse, so the mapping may
	// already belong to a newer session; only delete it if this session
	// still owns it.
	ownsPIN := false
	owner, err := s.client.Get(ctx, s.pinKey(session.PIN)).Result()
	switch {
	case err == nil:
		ownsPIN = owner == id
	case errors.Is(err, redis.Nil):
	default:
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(id))
	if ownsPIN {
		pipe.Del(ctx, s.pinKey(session.PIN))
	}
	pipe.SRem(ctx, s.indexKey(), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) FindActive(ctx context.Context) ([]*domain.Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	var active []*domain.Session
	for _, id := range ids {
		session, err := s.FindByID(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// expired entry, drop it from the index
			_ = s.client.SRem(ctx, s.indexKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.Status == domain.StatusActive {
			active = append(active, session)
		}
	}
	return active, nil
}

func (s *SessionStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, err
	}
	cutoff := s.clock().Add(-age)
	count := 0
	for _, id := range ids {
		session, err := s.FindByID(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			_ = s.client.SRem(ctx, s.indexKey(), id).Err()
			continue
		}
		if err != nil {
			return count, err
		}
		if session.Status == domain.StatusFinished && session.CreatedAt.Before(cutoff) {
			if err := s.Delete(ctx, id); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (s *SessionStore) sessionKey(id string) string {
	return "session:" + id
}

func (s *SessionStore) pinKey(pin string) string {
	return "session:pin:" + pin
}

func (s *SessionStore) indexKey() string {
	return "sessions:index"
}
