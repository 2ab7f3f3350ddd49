package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nimbusapi/nimbus-sdk-go/internal/domain"
	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/appconfig"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/queues"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/registry"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		content_type TEXT,
		tags TEXT,
		etag TEXT NOT NULL,
		read_only INTEGER NOT NULL DEFAULT 0,
		last_modified TIMESTAMP NOT NULL,
		PRIMARY KEY (key, label)
	);

	CREATE INDEX IF NOT EXISTS idx_settings_label ON settings(label);

	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		created_on TIMESTAMP NOT NULL,
		last_updated_on TIMESTAMP NOT NULL,
		manifest_count INTEGER NOT NULL DEFAULT 0,
		tag_count INTEGER NOT NULL DEFAULT 0,
		delete_enabled INTEGER NOT NULL DEFAULT 1,
		write_enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		display_name TEXT,
		pool_id TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		creation_time TIMESTAMP NOT NULL,
		state_transition_time TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);

	CREATE TABLE IF NOT EXISTS queues (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		queue TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		body BLOB NOT NULL,
		content_type TEXT,
		enqueued_at TIMESTAMP NOT NULL,
		delivery_count INTEGER NOT NULL DEFAULT 0,
		lock_token TEXT,
		locked_until TIMESTAMP,
		ttl INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		PRIMARY KEY (queue, id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_queue_seq ON messages(queue, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetSetting retrieves a single setting by key and label
func (s *sqliteStorage) GetSetting(ctx context.Context, key, label string) (*appconfig.Setting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, label, value, content_type, tags, etag, read_only, last_modified
		FROM settings
		WHERE key = ? AND label = ?
	`, key, label)
	return scanSetting(row)
}

func scanSetting(row *sql.Row) (*appconfig.Setting, error) {
	var setting appconfig.Setting
	var contentType, tagsJSON sql.NullString
	var readOnly int

	err := row.Scan(&setting.Key, &setting.Label, &setting.Value, &contentType, &tagsJSON, &setting.ETag, &readOnly, &setting.LastModified)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("setting")
	}
	if err != nil {
		return nil, err
	}

	if contentType.Valid {
		setting.ContentType = contentType.String
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &setting.Tags); err != nil {
			return nil, err
		}
	}
	setting.ReadOnly = readOnly == 1

	return &setting, nil
}

// UpsertSetting inserts or replaces a setting
func (s *sqliteStorage) UpsertSetting(ctx context.Context, setting *appconfig.Setting) error {
	var tagsJSON []byte
	if setting.Tags != nil {
		var err error
		tagsJSON, err = json.Marshal(setting.Tags)
		if err != nil {
			return err
		}
	}

	readOnly := 0
	if setting.ReadOnly {
		readOnly = 1
	}

	query := `
		INSERT OR REPLACE INTO settings (key, label, value, content_type, tags, etag, read_only, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		setting.Key,
		setting.Label,
		setting.Value,
		setting.ContentType,
		string(tagsJSON),
		setting.ETag,
		readOnly,
		setting.LastModified,
	)
	return err
}

// DeleteSetting removes a setting
func (s *sqliteStorage) DeleteSetting(ctx context.Context, key, label string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ? AND label = ?`, key, label)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("setting")
	}
	return nil
}

// ListSettings retrieves settings matching the filters, with the total match count
func (s *sqliteStorage) ListSettings(ctx context.Context, keyFilter, labelFilter string, offset, limit int) ([]*appconfig.Setting, int, error) {
	where := "1=1"
	args := []interface{}{}

	if pattern, ok := domain.FilterToLike(keyFilter); ok {
		where += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, pattern)
	}
	if pattern, ok := domain.FilterToLike(labelFilter); ok {
		where += ` AND label LIKE ? ESCAPE '\'`
		args = append(args, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT key, label, value, content_type, tags, etag, read_only, last_modified
		FROM settings
		WHERE ` + where + `
		ORDER BY key, label
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var settings []*appconfig.Setting
	for rows.Next() {
		var setting appconfig.Setting
		var contentType, tagsJSON sql.NullString
		var readOnly int

		err := rows.Scan(&setting.Key, &setting.Label, &setting.Value, &contentType, &tagsJSON, &setting.ETag, &readOnly, &setting.LastModified)
		if err != nil {
			return nil, 0, err
		}

		if contentType.Valid {
			setting.ContentType = contentType.String
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &setting.Tags); err != nil {
				return nil, 0, err
			}
		}
		setting.ReadOnly = readOnly == 1

		settings = append(settings, &setting)
	}

	return settings, total, rows.Err()
}

// GetRepository retrieves a repository by name
func (s *sqliteStorage) GetRepository(ctx context.Context, name string) (*registry.RepositoryProperties, error) {
	var repo registry.RepositoryProperties
	var deleteEnabled, writeEnabled int

	err := s.db.QueryRowContext(ctx, `
		SELECT name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled
		FROM repositories
		WHERE name = ?
	`, name).Scan(&repo.Name, &repo.CreatedOn, &repo.LastUpdatedOn, &repo.ManifestCount, &repo.TagCount, &deleteEnabled, &writeEnabled)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("repository")
	}
	if err != nil {
		return nil, err
	}

	repo.DeleteEnabled = deleteEnabled == 1
	repo.WriteEnabled = writeEnabled == 1

	return &repo, nil
}

// SaveRepository inserts or replaces a repository
func (s *sqliteStorage) SaveRepository(ctx context.Context, repo *registry.RepositoryProperties) error {
	deleteEnabled := 0
	if repo.DeleteEnabled {
		deleteEnabled = 1
	}
	writeEnabled := 0
	if repo.WriteEnabled {
		writeEnabled = 1
	}

	query := `
		INSERT OR REPLACE INTO repositories (name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		repo.Name,
		repo.CreatedOn,
		repo.LastUpdatedOn,
		repo.ManifestCount,
		repo.TagCount,
		deleteEnabled,
		writeEnabled,
	)
	return err
}

// DeleteRepository removes a repository
func (s *sqliteStorage) DeleteRepository(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("repository")
	}
	return nil
}

// ListRepositories retrieves repositories ordered by name, with the total count
func (s *sqliteStorage) ListRepositories(ctx context.Context, offset, limit int) ([]*registry.RepositoryProperties, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repositories`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled
		FROM repositories
		ORDER BY name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var repos []*registry.RepositoryProperties
	for rows.Next() {
		var repo registry.RepositoryProperties
		var deleteEnabled, writeEnabled int

		err := rows.Scan(&repo.Name, &repo.CreatedOn, &repo.LastUpdatedOn, &repo.ManifestCount, &repo.TagCount, &deleteEnabled, &writeEnabled)
		if err != nil {
			return nil, 0, err
		}

		repo.DeleteEnabled = deleteEnabled == 1
		repo.WriteEnabled = writeEnabled == 1

		repos = append(repos, &repo)
	}

	return repos, total, rows.Err()
}

// CreateJob inserts a new job; an existing ID is a conflict
func (s *sqliteStorage) CreateJob(ctx context.Context, job *batch.Job) error {
	query := `
		INSERT INTO jobs (id, display_name, pool_id, priority, state, creation_time, state_transition_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.DisplayName,
		job.PoolID,
		job.Priority,
		string(job.State),
		job.CreationTime,
		job.StateTransitionTime,
	)
	if err != nil {
		var exists int
		if s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, job.ID).Scan(&exists) == nil {
			return apperrors.NewConflictError("job already exists")
		}
		return err
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *sqliteStorage) GetJob(ctx context.Context, id string) (*batch.Job, error) {
	var job batch.Job
	var displayName sql.NullString
	var state string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, pool_id, priority, state, creation_time, state_transition_time
		FROM jobs
		WHERE id = ?
	`, id).Scan(&job.ID, &displayName, &job.PoolID, &job.Priority, &state, &job.CreationTime, &job.StateTransitionTime)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("job")
	}
	if err != nil {
		return nil, err
	}

	if displayName.Valid {
		job.DisplayName = displayName.String
	}
	job.State = batch.JobState(state)

	return &job, nil
}

// UpdateJobState moves a job to a new state
func (s *sqliteStorage) UpdateJobState(ctx context.Context, id string, state batch.JobState, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, state_transition_time = ? WHERE id = ?
	`, string(state), at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("job")
	}
	return nil
}

// DeleteJob removes a job row
func (s *sqliteStorage) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("job")
	}
	return nil
}

// ListJobs retrieves jobs ordered by creation time, with the total count
func (s *sqliteStorage) ListJobs(ctx context.Context, offset, limit int) ([]*batch.Job, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, pool_id, priority, state, creation_time, state_transition_time
		FROM jobs
		ORDER BY creation_time, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*batch.Job
	for rows.Next() {
		var job batch.Job
		var displayName sql.NullString
		var state string

		err := rows.Scan(&job.ID, &displayName, &job.PoolID, &job.Priority, &state, &job.CreationTime, &job.StateTransitionTime)
		if err != nil {
			return nil, 0, err
		}

		if displayName.Valid {
			job.DisplayName = displayName.String
		}
		job.State = batch.JobState(state)

		jobs = append(jobs, &job)
	}

	return jobs, total, rows.Err()
}

// CreateQueue inserts a new queue; an existing name is a conflict
func (s *sqliteStorage) CreateQueue(ctx context.Context, name string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO queues (name, created_at) VALUES (?, ?)`, name, createdAt)
	if err != nil {
		var exists int
		if s.db.QueryRowContext(ctx, `SELECT 1 FROM queues WHERE name = ?`, name).Scan(&exists) == nil {
			return apperrors.NewConflictError("queue already exists")
		}
		return err
	}
	return nil
}

// GetQueue retrieves a queue with its current message count
func (s *sqliteStorage) GetQueue(ctx context.Context, name string) (*queues.Queue, error) {
	var queue queues.Queue
	err := s.db.QueryRowContext(ctx, `
		SELECT q.name, q.created_at, COUNT(m.id)
		FROM queues q
		LEFT JOIN messages m ON m.queue = q.name
		WHERE q.name = ?
		GROUP BY q.name, q.created_at
	`, name).Scan(&queue.Name, &queue.CreatedAt, &queue.MessageCount)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("queue")
	}
	if err != nil {
		return nil, err
	}
	return &queue, nil
}

// DeleteQueue removes a queue and its messages
func (s *sqliteStorage) DeleteQueue(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM queues WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("queue")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE queue = ?`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// ListQueues retrieves queues ordered by name, with the total count
func (s *sqliteStorage) ListQueues(ctx context.Context, offset, limit int) ([]*queues.Queue, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queues`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.name, q.created_at, COUNT(m.id)
		FROM queues q
		LEFT JOIN messages m ON m.queue = q.name
		GROUP BY q.name, q.created_at
		ORDER BY q.name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []*queues.Queue
	for rows.Next() {
		var queue queues.Queue
		if err := rows.Scan(&queue.Name, &queue.CreatedAt, &queue.MessageCount); err != nil {
			return nil, 0, err
		}
		list = append(list, &queue)
	}

	return list, total, rows.Err()
}

// EnqueueMessage appends a message to a queue, assigning ID and sequence number
func (s *sqliteStorage) EnqueueMessage(ctx context.Context, queue string, msg *queues.Message) (*queues.Message, error) {
	if _, err := s.GetQueue(ctx, queue); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE queue = ?`, queue).Scan(&seq)
	if err != nil {
		return nil, err
	}

	stored := *msg
	stored.ID = uuid.New().String()
	stored.SequenceNumber = seq
	stored.EnqueuedAt = time.Now().UTC()
	stored.DeliveryCount = 0
	stored.LockToken = ""
	stored.LockedUntil = time.Time{}

	var expiresAt interface{}
	if stored.TimeToLive > 0 {
		expiresAt = stored.EnqueuedAt.Add(stored.TimeToLive)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (queue, id, seq, body, content_type, enqueued_at, delivery_count, ttl, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, queue, stored.ID, stored.SequenceNumber, stored.Body, stored.ContentType, stored.EnqueuedAt, int64(stored.TimeToLive), expiresAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &stored, nil
}

// LockNextMessage locks and returns the oldest available message, or nil
// when the queue is empty. Messages whose lock has expired become
// available again.
func (s *sqliteStorage) LockNextMessage(ctx context.Context, queue string, lockDuration time.Duration) (*queues.Message, error) {
	if _, err := s.GetQueue(ctx, queue); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	msg, err := scanMessage(tx.QueryRowContext(ctx, `
		SELECT id, seq, body, content_type, enqueued_at, delivery_count, lock_token, locked_until, ttl
		FROM messages
		WHERE queue = ? AND (locked_until IS NULL OR locked_until <= ?)
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY seq
		LIMIT 1
	`, queue, now, now))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}

	msg.LockToken = uuid.New().String()
	msg.LockedUntil = now.Add(lockDuration)
	msg.DeliveryCount++

	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET lock_token = ?, locked_until = ?, delivery_count = ?
		WHERE queue = ? AND id = ?
	`, msg.LockToken, msg.LockedUntil, msg.DeliveryCount, queue, msg.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// PeekNextMessage returns the oldest available message without locking it,
// or nil when the queue is empty
func (s *sqliteStorage) PeekNextMessage(ctx context.Context, queue string) (*queues.Message, error) {
	if _, err := s.GetQueue(ctx, queue); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, seq, body, content_type, enqueued_at, delivery_count, lock_token, locked_until, ttl
		FROM messages
		WHERE queue = ? AND (locked_until IS NULL OR locked_until <= ?)
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY seq
		LIMIT 1
	`, queue, now, now))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}

	// Peeked messages carry no lock
	msg.LockToken = ""
	msg.LockedUntil = time.Time{}

	return msg, nil
}

func scanMessage(row *sql.Row) (*queues.Message, error) {
	var msg queues.Message
	var contentType, lockToken sql.NullString
	var lockedUntil sql.NullTime
	var ttl int64

	err := row.Scan(&msg.ID, &msg.SequenceNumber, &msg.Body, &contentType, &msg.EnqueuedAt, &msg.DeliveryCount, &lockToken, &lockedUntil, &ttl)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if contentType.Valid {
		msg.ContentType = contentType.String
	}
	if lockToken.Valid {
		msg.LockToken = lockToken.String
	}
	if lockedUntil.Valid {
		msg.LockedUntil = lockedUntil.Time
	}
	msg.TimeToLive = time.Duration(ttl)

	return &msg, nil
}

// DeleteMessage removes a locked message, verifying the lock token
func (s *sqliteStorage) DeleteMessage(ctx context.Context, queue, id, lockToken string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE queue = ? AND id = ? AND lock_token = ? AND locked_until > ?
	`, queue, id, lockToken, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewPreconditionFailedError("message lock is invalid or expired")
	}
	return nil
}

// UnlockMessage releases a message lock, verifying the lock token
func (s *sqliteStorage) UnlockMessage(ctx context.Context, queue, id, lockToken string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET lock_token = NULL, locked_until = NULL
		WHERE queue = ? AND id = ? AND lock_token = ? AND locked_until > ?
	`, queue, id, lockToken, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewPreconditionFailedError("message lock is invalid or expired")
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
