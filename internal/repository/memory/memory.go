// Package memory holds map-backed repositories for tests and local runs
// without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
)

// UserRepository is a concurrency-safe in-memory repository.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
	now   func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User), now: time.Now}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return apperrors.Conflict("email already registered")
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user", email)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *UserRepository) List(_ context.Context, filter domain.UserFilter, limit, offset int) ([]domain.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var matched []domain.User
	for _, u := range r.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Approved != nil && u.Approved != *filter.Approved {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.FullName), q) && !strings.Contains(u.Email, q) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []domain.User{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *UserRepository) update(id string, fn func(*domain.User)) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	fn(&u)
	u.UpdatedAt = r.now().UTC()
	r.users[id] = u
	return &u, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, user *domain.User) error {
	updated, err := r.update(user.ID, func(u *domain.User) {
		u.FullName = user.FullName
		u.Division = user.Division
		u.AvatarURL = user.AvatarURL
	})
	if err != nil {
		return err
	}
	*user = *updated
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := r.update(id, func(u *domain.User) { u.PasswordHash = passwordHash })
	return err
}

func (r *UserRepository) SetApproved(_ context.Context, id string, approved bool) (*domain.User, error) {
	return r.update(id, func(u *domain.User) { u.Approved = approved })
}

func (r *UserRepository) SetRole(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	return r.update(id, func(u *domain.User) { u.Role = role })
}

// RefreshTokenRepository is a concurrency-safe in-memory
// repository.RefreshTokenRepository.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
	now    func() time.Time
}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]domain.RefreshToken), now: time.Now}
}

func (r *RefreshTokenRepository) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(token)
	return nil
}

func (r *RefreshTokenRepository) insert(token *domain.RefreshToken) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.CreatedAt = r.now().UTC()
	r.tokens[token.TokenHash] = *token
}

func (r *RefreshTokenRepository) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, apperrors.NotFound("refresh token", "")
	}
	return &t, nil
}

func (r *RefreshTokenRepository) revoke(t domain.RefreshToken) {
	at := r.now().UTC()
	t.Revoked = true
	t.RevokedAt = &at
	r.tokens[t.TokenHash] = t
}

func (r *RefreshTokenRepository) Revoke(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tokens[tokenHash]; ok && !t.Revoked {
		r.revoke(t)
	}
	return nil
}

func (r *RefreshTokenRepository) Rotate(_ context.Context, oldHash, userID string, next *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[oldHash]
	if !ok || t.Revoked || t.UserID != userID {
		return domain.ErrTokenRevoked
	}
	r.revoke(t)
	r.insert(next)
	return nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			r.revoke(t)
			n++
		}
	}
	return n, nil
}

// DeleteUser drops a user and, like the foreign key cascade in PostgreSQL,
// every refresh token they own.
func DeleteUser(users *UserRepository, tokens *RefreshTokenRepository, id string) {
	users.mu.Lock()
	delete(users.users, id)
	users.mu.Unlock()

	tokens.mu.Lock()
	for h, t := range tokens.tokens {
		if t.UserID == id {
			delete(tokens.tokens, h)
		}
	}
	tokens.mu.Unlock()
}
