package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists projects and sessions in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL, verifies the connection, and makes
// sure the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool. The caller owns the schema.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the gateway tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS gateway_projects (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    repository_type TEXT NOT NULL,
    repository_url TEXT NOT NULL,
    github_token TEXT NOT NULL DEFAULT '',
    backlog_domain TEXT NOT NULL DEFAULT '',
    backlog_project_key TEXT NOT NULL DEFAULT '',
    backlog_api_key TEXT NOT NULL DEFAULT '',
    backlog_email TEXT NOT NULL DEFAULT '',
    backlog_git_password TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_projects_user ON gateway_projects (user_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS gateway_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES gateway_projects (id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_sessions_user_project ON gateway_sessions (user_id, project_id, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS gateway_messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES gateway_sessions (id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_messages_session ON gateway_messages (session_id, position);`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const projectColumns = `id, user_id, name, description, repository_type, repository_url,
github_token, backlog_domain, backlog_project_key, backlog_api_key,
backlog_email, backlog_git_password, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.RepositoryType, &p.RepositoryURL,
		&p.GitHubToken, &p.BacklogDomain, &p.BacklogProjectKey, &p.BacklogAPIKey,
		&p.BacklogEmail, &p.BacklogGitPassword, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *PostgresStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM gateway_projects WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Project, error) {
		return scanProject(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, userID, id string) (Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM gateway_projects WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, p Project) (Project, error) {
	if err := p.Validate(); err != nil {
		return Project{}, err
	}

	now := dbNow()
	p.ID = newID()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
INSERT INTO gateway_projects (`+projectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.UserID, p.Name, p.Description, p.RepositoryType, p.RepositoryURL,
		p.GitHubToken, p.BacklogDomain, p.BacklogProjectKey, p.BacklogAPIKey,
		p.BacklogEmail, p.BacklogGitPassword, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p Project) (Project, error) {
	if err := p.Validate(); err != nil {
		return Project{}, err
	}

	updated, err := scanProject(s.pool.QueryRow(ctx, `
UPDATE gateway_projects
SET name = $3, description = $4, repository_type = $5, repository_url = $6,
    github_token = $7, backlog_domain = $8, backlog_project_key = $9,
    backlog_api_key = $10, backlog_email = $11, backlog_git_password = $12,
    updated_at = $13
WHERE id = $1 AND user_id = $2
RETURNING `+projectColumns,
		p.ID, p.UserID, p.Name, p.Description, p.RepositoryType, p.RepositoryURL,
		p.GitHubToken, p.BacklogDomain, p.BacklogProjectKey, p.BacklogAPIKey,
		p.BacklogEmail, p.BacklogGitPassword, dbNow()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	return updated, nil
}

// DeleteProject removes the project; its sessions and messages cascade.
func (s *PostgresStore) DeleteProject(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gateway_projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// dbNow is truncated to the precision Postgres stores so that returned records
// compare equal to what a later read yields.
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, project_id, created_at, updated_at
FROM gateway_sessions
WHERE user_id = $1
ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if err := attachMessages(ctx, s.pool, sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

func (s *PostgresStore) SessionForProject(ctx context.Context, userID, projectID string) (Session, error) {
	return loadSession(ctx, s.pool, `
SELECT id, project_id, created_at, updated_at
FROM gateway_sessions
WHERE user_id = $1 AND project_id = $2
ORDER BY updated_at DESC
LIMIT 1`, userID, projectID)
}

func (s *PostgresStore) SaveSession(ctx context.Context, userID, projectID string, msgs []MessageInput) (Session, bool, error) {
	if err := validateMessages(msgs); err != nil {
		return Session{}, false, err
	}

	var (
		out     Session
		created bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM gateway_projects WHERE id = $1 AND user_id = $2)`,
			projectID, userID).Scan(&owned); err != nil {
			return err
		}
		if !owned {
			return ErrNotFound
		}

		now := dbNow()
		var sessionID string
		err := tx.QueryRow(ctx, `
SELECT id FROM gateway_sessions
WHERE user_id = $1 AND project_id = $2
ORDER BY updated_at DESC
LIMIT 1`, userID, projectID).Scan(&sessionID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			sessionID = newID()
			created = true
			if _, err := tx.Exec(ctx, `
INSERT INTO gateway_sessions (id, user_id, project_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)`, sessionID, userID, projectID, now); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if err := replaceMessages(ctx, tx, sessionID, msgs, now); err != nil {
			return err
		}
		out, err = loadSession(ctx, tx, sessionByIDQuery, sessionID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Session{}, false, ErrNotFound
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("save session: %w", err)
	}
	return out, created, nil
}

func (s *PostgresStore) ReplaceMessages(ctx context.Context, userID, sessionID string, msgs []MessageInput) (Session, error) {
	if err := validateMessages(msgs); err != nil {
		return Session{}, err
	}

	var out Session
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM gateway_sessions WHERE id = $1 AND user_id = $2)`,
			sessionID, userID).Scan(&owned); err != nil {
			return err
		}
		if !owned {
			return ErrNotFound
		}
		if err := replaceMessages(ctx, tx, sessionID, msgs, dbNow()); err != nil {
			return err
		}
		var err error
		out, err = loadSession(ctx, tx, sessionByIDQuery, sessionID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("replace messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gateway_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProjectSessions(ctx context.Context, userID, projectID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM gateway_sessions WHERE project_id = $1 AND user_id = $2`, projectID, userID); err != nil {
		return fmt.Errorf("delete project sessions: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const sessionByIDQuery = `
SELECT id, project_id, created_at, updated_at
FROM gateway_sessions
WHERE id = $1`

func scanSession(row pgx.CollectableRow) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.CreatedAt, &sess.UpdatedAt)
	return sess, err
}

func loadSession(ctx context.Context, q querier, sql string, args ...any) (Session, error) {
	var sess Session
	err := q.QueryRow(ctx, sql, args...).Scan(&sess.ID, &sess.ProjectID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	sessions := []Session{sess}
	if err := attachMessages(ctx, q, sessions); err != nil {
		return Session{}, err
	}
	return sessions[0], nil
}

// attachMessages fills in the ordered message list of every session in place.
func attachMessages(ctx context.Context, q querier, sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}

	ids := make([]string, len(sessions))
	index := make(map[string]int, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
		index[sessions[i].ID] = i
		sessions[i].Messages = []Message{}
	}

	rows, err := q.Query(ctx, `
SELECT session_id, id, role, content, created_at
FROM gateway_messages
WHERE session_id = ANY($1)
ORDER BY session_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID string
			m         Message
		)
		if err := rows.Scan(&sessionID, &m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		i := index[sessionID]
		sessions[i].Messages = append(sessions[i].Messages, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	return nil
}

func replaceMessages(ctx context.Context, tx pgx.Tx, sessionID string, msgs []MessageInput, now time.Time) error {
	if _, err := tx.Exec(ctx, `DELETE FROM gateway_messages WHERE session_id = $1`, sessionID); err != nil {
		return err
	}

	if len(msgs) > 0 {
		batch := &pgx.Batch{}
		for i, m := range msgs {
			batch.Queue(`
INSERT INTO gateway_messages (id, session_id, position, role, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, newID(), sessionID, i, m.Role, m.Content, now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	_, err := tx.Exec(ctx, `UPDATE gateway_sessions SET updated_at = $2 WHERE id = $1`, sessionID, now)
	return err
}
