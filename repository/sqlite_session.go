package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/chatsync/database"
	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// sqliteSessionRepo, SessionRepository interface'inin SQLite implementasyonu.
type sqliteSessionRepo struct {
	conn *sql.DB
}

// NewSQLiteSessionRepo, constructor.
func NewSQLiteSessionRepo(conn *sql.DB) SessionRepository {
	return &sqliteSessionRepo{conn: conn}
}

// Save, kayıtlı login'i değiştirir. Eski satırın silinmesi ve yenisinin
// yazılması tek transaction'dadır.
func (r *sqliteSessionRepo) Save(ctx context.Context, session *models.StoredSession) error {
	if session.Username == "" || session.Token == "" {
		return fmt.Errorf("%w: session needs username and token", pkg.ErrBadRequest)
	}

	err := database.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		if err := deleteSession(ctx, tx); err != nil {
			return err
		}
		return insertSession(ctx, tx, session)
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if session.LastScope != "" {
		return r.SaveLastScope(ctx, session.Username, session.LastScope)
	}
	return nil
}

func (r *sqliteSessionRepo) Load(ctx context.Context) (*models.StoredSession, error) {
	query := `
		SELECT s.username, s.token, s.expires_at, s.saved_at, COALESCE(l.scope, '')
		FROM saved_session s
		LEFT JOIN last_scopes l ON l.username = s.username
		WHERE s.id = 1`

	session := &models.StoredSession{}
	var expiresAt int64
	err := r.conn.QueryRowContext(ctx, query).Scan(
		&session.Username, &session.Token, &expiresAt, &session.SavedAt, &session.LastScope,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return session, nil
}

func (r *sqliteSessionRepo) UpdateToken(ctx context.Context, token string, expiresAt time.Time) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE saved_session SET token = ?, expires_at = ?, saved_at = CURRENT_TIMESTAMP WHERE id = 1`,
		token, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteSessionRepo) Delete(ctx context.Context) error {
	if err := deleteSession(ctx, r.conn); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *sqliteSessionRepo) SaveLastScope(ctx context.Context, username, scope string) error {
	query := `
		INSERT INTO last_scopes (username, scope) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET scope = excluded.scope, updated_at = CURRENT_TIMESTAMP`

	if _, err := r.conn.ExecContext(ctx, query, username, scope); err != nil {
		return fmt.Errorf("failed to save last scope: %w", err)
	}
	return nil
}

func (r *sqliteSessionRepo) LoadLastScope(ctx context.Context, username string) (string, error) {
	var scope string
	err := r.conn.QueryRowContext(ctx, `SELECT scope FROM last_scopes WHERE username = ?`, username).Scan(&scope)
	if errors.Is(err, sql.ErrNoRows) {
		return "", pkg.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load last scope: %w", err)
	}
	return scope, nil
}

func insertSession(ctx context.Context, q database.TxQuerier, session *models.StoredSession) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO saved_session (id, username, token, expires_at) VALUES (1, ?, ?, ?)`,
		session.Username, session.Token, session.ExpiresAt.Unix(),
	)
	return err
}

func deleteSession(ctx context.Context, q database.TxQuerier) error {
	_, err := q.ExecContext(ctx, `DELETE FROM saved_session WHERE id = 1`)
	return err
}
