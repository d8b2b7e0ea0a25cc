package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/database"
	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
)

const userColumns = `id, full_name, email, password_hash, role, approved, division, avatar_url, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user, assigning an ID and timestamps. A taken email is a
// Conflict.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	query := `
		INSERT INTO users (id, full_name, email, password_hash, role, approved, division, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, done := database.TraceQuery(ctx, "insert_user", query)
	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.FullName,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		u.Approved,
		u.Division,
		u.AvatarURL,
		u.CreatedAt,
		u.UpdatedAt,
	)
	done(err)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	ctx, done := database.TraceQuery(ctx, "get_user", query)
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	done(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// GetByEmail retrieves a user by their normalized email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	ctx, done := database.TraceQuery(ctx, "get_user_by_email", query)
	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	done(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", email)
	}
	return u, err
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user email: %w", err)
	}
	return exists, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// userFilterClause builds the WHERE clause for filter. Placeholders start at
// $1.
func userFilterClause(f domain.UserFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Role != nil {
		args = append(args, string(*f.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Approved != nil {
		args = append(args, *f.Approved)
		conds = append(conds, fmt.Sprintf("approved = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		conds = append(conds, fmt.Sprintf("(full_name ILIKE $%[1]d OR email ILIKE $%[1]d)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of users matching filter, newest first.
func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter, limit, offset int) ([]domain.User, int, error) {
	where, args := userFilterClause(filter)

	countQuery := `SELECT COUNT(*) FROM users` + where
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, n+1, n+2)
	args = append(args, limit, offset)

	ctx, done := database.TraceQuery(ctx, "list_users", query)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		done(err)
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			done(err)
			return nil, 0, err
		}
		users = append(users, *u)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

// UpdateProfile writes the user-editable profile fields and refreshes u from
// the stored row.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users SET full_name = $1, division = $2, avatar_url = $3, updated_at = $4
		WHERE id = $5
		RETURNING ` + userColumns

	ctx, done := database.TraceQuery(ctx, "update_user_profile", query)
	updated, err := scanUser(r.db.QueryRow(ctx, query, u.FullName, u.Division, u.AvatarURL, time.Now().UTC(), u.ID))
	done(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("user", u.ID)
		}
		return err
	}
	*u = *updated
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ctx, done := database.TraceQuery(ctx, "update_user_password", query)
	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	done(err)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

func (r *UserRepository) SetApproved(ctx context.Context, id string, approved bool) (*domain.User, error) {
	return r.updateReturning(ctx, "set_user_approved",
		`UPDATE users SET approved = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		id, approved)
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	return r.updateReturning(ctx, "set_user_role",
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		id, string(role))
}

func (r *UserRepository) updateReturning(ctx context.Context, op, query, id string, value any) (*domain.User, error) {
	ctx, done := database.TraceQuery(ctx, op, query)
	u, err := scanUser(r.db.QueryRow(ctx, query, value, time.Now().UTC(), id))
	done(err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// scanUser reads one row in userColumns order. pgx.ErrNoRows is returned
// unwrapped so callers can map it.
func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Approved,
		&u.Division,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}
