package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

var (
	ErrUserExists      = errors.New("username or email already registered")
	ErrInvalidUsername = errors.New("username must be 3-24 letters, digits, or underscores")
	ErrSessionExpired  = errors.New("session expired or not found")
)

type Service struct {
	db            *pgxpool.Pool
	log           *slog.Logger
	sessionTTL    time.Duration
	starterPoints int64
}

type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is the verified caller attached to every authenticated request.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, sessionTTL time.Duration, starterPoints int64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	return &Service{db: db, log: logger, sessionTTL: sessionTTL, starterPoints: starterPoints}
}

func (s *Service) Signup(ctx context.Context, username, email, password string) (Session, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if !usernameRE.MatchString(username) {
		return Session{}, ErrInvalidUsername
	}
	if !strings.Contains(email, "@") {
		return Session{}, fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return Session{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, points)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, username, email, hash, s.starterPoints).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, ErrUserExists
		}
		return Session{}, err
	}

	sess, err := insertSession(ctx, tx, userID, username, email, s.sessionTTL)
	if err != nil {
		return Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	s.log.Info("user registered", "user_id", userID, "username", username)
	return sess, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var userID int64
	var username, hash string
	var active bool
	err := s.db.QueryRow(ctx, `
		SELECT id, username, password_hash, is_active
		FROM users
		WHERE email = $1
	`, email).Scan(&userID, &username, &hash, &active)
	if err == pgx.ErrNoRows {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !active {
		return Session{}, ErrBadCredentials
	}
	if err := VerifyPassword(password, hash); err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return Session{}, ErrBadCredentials
		}
		return Session{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	sess, err := insertSession(ctx, tx, userID, username, email, s.sessionTTL)
	if err != nil {
		return Session{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, userID); err != nil {
		return Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// VerifyToken resolves a bearer token to an account identity. Expired rows
// are treated the same as missing ones.
func (s *Service) VerifyToken(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if _, err := uuid.Parse(token); err != nil {
		return Identity{}, ErrSessionExpired
	}
	var id Identity
	err := s.db.QueryRow(ctx, `
		SELECT u.id, u.username, u.email
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		WHERE se.token = $1 AND se.expires_at > now() AND u.is_active
	`, token).Scan(&id.UserID, &id.Username, &id.Email)
	if err == pgx.ErrNoRows {
		return Identity{}, ErrSessionExpired
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

// PruneSessions deletes expired session rows, returning the count removed.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func insertSession(ctx context.Context, tx pgx.Tx, userID int64, username, email string, ttl time.Duration) (Session, error) {
	token := uuid.NewString()
	expires := time.Now().Add(ttl)
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expires); err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    userID,
		Username:  username,
		Email:     email,
		ExpiresAt: expires,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
