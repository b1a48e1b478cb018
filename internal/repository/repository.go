package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elisha-et/TutorLink/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
	// ErrConflict is returned when a status transition loses the race on
	// an open help request.
	ErrConflict = errors.New("request is no longer open")
)

// Storage is the persistence contract shared by the Postgres store and
// the in-memory store used in tests and dev mode.
type Storage interface {
	CreateUser(ctx context.Context, user model.User, role model.Role) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)

	UpsertTutorProfile(ctx context.Context, profile model.TutorProfile) error
	SearchTutors(ctx context.Context, subject string) ([]model.TutorListing, error)

	CreateHelpRequest(ctx context.Context, request model.HelpRequest) error
	ListRequestsByStudent(ctx context.Context, studentID string) ([]model.HelpRequest, error)
	ListOpenRequests(ctx context.Context, subject string) ([]model.HelpRequest, error)
	AcceptHelpRequest(ctx context.Context, requestID, tutorID string) error
	DeclineHelpRequest(ctx context.Context, requestID, tutorID string) error
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, user model.User, role model.Role) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.PasswordHash, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
	`, user.ID, role)
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, userID)
}

func (s *Store) getUser(ctx context.Context, where, arg string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, created_at, updated_at
		FROM users
	`+where, arg)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	user.Roles, err = s.getRoles(ctx, user.ID)
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) getRoles(ctx context.Context, userID string) ([]model.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) UpsertTutorProfile(ctx context.Context, profile model.TutorProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tutor_profiles (user_id, bio, subjects, availability, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio,
		    subjects = EXCLUDED.subjects,
		    availability = EXCLUDED.availability,
		    updated_at = EXCLUDED.updated_at
	`, profile.UserID, profile.Bio, profile.Subjects, profile.Availability, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tutor profile: %w", err)
	}
	return nil
}

func (s *Store) SearchTutors(ctx context.Context, subject string) ([]model.TutorListing, error) {
	query := `
		SELECT p.user_id, u.name, p.bio, p.subjects
		FROM tutor_profiles p
		JOIN users u ON u.id = p.user_id
	`
	args := []any{}
	if subject = NormalizeSubject(subject); subject != "" {
		query += ` WHERE EXISTS (
			SELECT 1 FROM unnest(p.subjects) AS s WHERE lower(s) = lower($1)
		)`
		args = append(args, subject)
	}
	query += ` ORDER BY u.name, p.user_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search tutors: %w", err)
	}
	defer rows.Close()

	listings := []model.TutorListing{}
	for rows.Next() {
		var listing model.TutorListing
		if err := rows.Scan(&listing.TutorID, &listing.Name, &listing.Bio, &listing.Subjects); err != nil {
			return nil, fmt.Errorf("scan tutor listing: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

func (s *Store) CreateHelpRequest(ctx context.Context, request model.HelpRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO help_requests (id, student_id, subject, description, preferred_times, status, tutor_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, request.ID, request.StudentID, request.Subject, request.Description,
		request.PreferredTimes, request.Status, request.TutorID, request.CreatedAt, request.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert help request: %w", err)
	}
	return nil
}

const helpRequestColumns = `
	r.id, r.student_id, u.name, r.subject, r.description, r.preferred_times,
	r.status, r.tutor_id, r.created_at, r.updated_at
`

// ListRequestsByStudent returns the student's own requests,
// most recent first (created_at DESC with id as a stable tiebreak).
func (s *Store) ListRequestsByStudent(ctx context.Context, studentID string) ([]model.HelpRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+helpRequestColumns+`
		FROM help_requests r
		JOIN users u ON u.id = r.student_id
		WHERE r.student_id = $1
		ORDER BY r.created_at DESC, r.id DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return scanHelpRequests(rows)
}

// ListOpenRequests returns every open request, most recent first. A
// non-empty subject restricts to a case-insensitive exact match on the
// normalized subject tag.
func (s *Store) ListOpenRequests(ctx context.Context, subject string) ([]model.HelpRequest, error) {
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests r
		JOIN users u ON u.id = r.student_id
		WHERE r.status = 'open'
	`
	args := []any{}
	if subject = NormalizeSubject(subject); subject != "" {
		query += ` AND lower(r.subject) = lower($1)`
		args = append(args, subject)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	return scanHelpRequests(rows)
}

// AcceptHelpRequest moves an open request to matched and records the
// winning tutor. The transition is a single compare-and-set: at most
// one caller ever succeeds, everyone else gets ErrConflict.
func (s *Store) AcceptHelpRequest(ctx context.Context, requestID, tutorID string) error {
	return s.transition(ctx, requestID, `
		UPDATE help_requests
		SET status = 'matched', tutor_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, tutorID)
}

// DeclineHelpRequest closes an open request. tutor_id stays NULL: a
// declined request was never matched.
func (s *Store) DeclineHelpRequest(ctx context.Context, requestID, tutorID string) error {
	return s.transition(ctx, requestID, `
		UPDATE help_requests
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND status = 'open'
	`)
}

func (s *Store) transition(ctx context.Context, requestID, query string, extra ...any) error {
	args := append([]any{requestID}, extra...)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM help_requests WHERE id = $1)
	`, requestID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanHelpRequests(rows pgx.Rows) ([]model.HelpRequest, error) {
	defer rows.Close()

	requests := []model.HelpRequest{}
	for rows.Next() {
		var request model.HelpRequest
		err := rows.Scan(
			&request.ID,
			&request.StudentID,
			&request.StudentName,
			&request.Subject,
			&request.Description,
			&request.PreferredTimes,
			&request.Status,
			&request.TutorID,
			&request.CreatedAt,
			&request.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// NormalizeSubject trims the free-text subject tag so that filtering is
// deterministic across stores.
func NormalizeSubject(subject string) string {
	return strings.TrimSpace(subject)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
