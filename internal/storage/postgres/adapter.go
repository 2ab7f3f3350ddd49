package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nimbusapi/nimbus-sdk-go/internal/domain"
	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/appconfig"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/queues"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/registry"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		content_type TEXT,
		tags JSONB,
		etag TEXT NOT NULL,
		read_only BOOLEAN NOT NULL DEFAULT FALSE,
		last_modified TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (key, label)
	);

	CREATE INDEX IF NOT EXISTS idx_settings_label ON settings(label);

	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		created_on TIMESTAMPTZ NOT NULL,
		last_updated_on TIMESTAMPTZ NOT NULL,
		manifest_count INTEGER NOT NULL DEFAULT 0,
		tag_count INTEGER NOT NULL DEFAULT 0,
		delete_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		write_enabled BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		display_name TEXT,
		pool_id TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		creation_time TIMESTAMPTZ NOT NULL,
		state_transition_time TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);

	CREATE TABLE IF NOT EXISTS queues (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		queue TEXT NOT NULL,
		id TEXT NOT NULL,
		seq BIGSERIAL,
		body BYTEA NOT NULL,
		content_type TEXT,
		enqueued_at TIMESTAMPTZ NOT NULL,
		delivery_count INTEGER NOT NULL DEFAULT 0,
		lock_token TEXT,
		locked_until TIMESTAMPTZ,
		ttl BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ,
		PRIMARY KEY (queue, id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_queue_seq ON messages(queue, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetSetting retrieves a single setting by key and label
func (s *postgresStorage) GetSetting(ctx context.Context, key, label string) (*appconfig.Setting, error) {
	var setting appconfig.Setting
	var contentType, tagsJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT key, label, value, content_type, tags, etag, read_only, last_modified
		FROM settings
		WHERE key = $1 AND label = $2
	`, key, label).Scan(&setting.Key, &setting.Label, &setting.Value, &contentType, &tagsJSON, &setting.ETag, &setting.ReadOnly, &setting.LastModified)
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

	return &setting, nil
}

// UpsertSetting inserts or replaces a setting
func (s *postgresStorage) UpsertSetting(ctx context.Context, setting *appconfig.Setting) error {
	var tagsJSON []byte
	if setting.Tags != nil {
		var err error
		tagsJSON, err = json.Marshal(setting.Tags)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO settings (key, label, value, content_type, tags, etag, read_only, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key, label) DO UPDATE SET
			value = EXCLUDED.value,
			content_type = EXCLUDED.content_type,
			tags = EXCLUDED.tags,
			etag = EXCLUDED.etag,
			read_only = EXCLUDED.read_only,
			last_modified = EXCLUDED.last_modified
	`
	_, err := s.db.ExecContext(ctx, query,
		setting.Key,
		setting.Label,
		setting.Value,
		setting.ContentType,
		nullableString(tagsJSON),
		setting.ETag,
		setting.ReadOnly,
		setting.LastModified,
	)
	return err
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// DeleteSetting removes a setting
func (s *postgresStorage) DeleteSetting(ctx context.Context, key, label string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1 AND label = $2`, key, label)
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
func (s *postgresStorage) ListSettings(ctx context.Context, keyFilter, labelFilter string, offset, limit int) ([]*appconfig.Setting, int, error) {
	where := "TRUE"
	args := []interface{}{}

	if pattern, ok := domain.FilterToLike(keyFilter); ok {
		args = append(args, pattern)
		where += ` AND key LIKE $` + strconv.Itoa(len(args)) + ` ESCAPE '\'`
	}
	if pattern, ok := domain.FilterToLike(labelFilter); ok {
		args = append(args, pattern)
		where += ` AND label LIKE $` + strconv.Itoa(len(args)) + ` ESCAPE '\'`
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
		LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var settings []*appconfig.Setting
	for rows.Next() {
		var setting appconfig.Setting
		var contentType, tagsJSON sql.NullString

		err := rows.Scan(&setting.Key, &setting.Label, &setting.Value, &contentType, &tagsJSON, &setting.ETag, &setting.ReadOnly, &setting.LastModified)
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

		settings = append(settings, &setting)
	}

	return settings, total, rows.Err()
}

// GetRepository retrieves a repository by name
func (s *postgresStorage) GetRepository(ctx context.Context, name string) (*registry.RepositoryProperties, error) {
	var repo registry.RepositoryProperties

	err := s.db.QueryRowContext(ctx, `
		SELECT name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled
		FROM repositories
		WHERE name = $1
	`, name).Scan(&repo.Name, &repo.CreatedOn, &repo.LastUpdatedOn, &repo.ManifestCount, &repo.TagCount, &repo.DeleteEnabled, &repo.WriteEnabled)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("repository")
	}
	if err != nil {
		return nil, err
	}

	return &repo, nil
}

// SaveRepository inserts or replaces a repository
func (s *postgresStorage) SaveRepository(ctx context.Context, repo *registry.RepositoryProperties) error {
	query := `
		INSERT INTO repositories (name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			last_updated_on = EXCLUDED.last_updated_on,
			manifest_count = EXCLUDED.manifest_count,
			tag_count = EXCLUDED.tag_count,
			delete_enabled = EXCLUDED.delete_enabled,
			write_enabled = EXCLUDED.write_enabled
	`
	_, err := s.db.ExecContext(ctx, query,
		repo.Name,
		repo.CreatedOn,
		repo.LastUpdatedOn,
		repo.ManifestCount,
		repo.TagCount,
		repo.DeleteEnabled,
		repo.WriteEnabled,
	)
	return err
}

// DeleteRepository removes a repository
func (s *postgresStorage) DeleteRepository(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE name = $1`, name)
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
func (s *postgresStorage) ListRepositories(ctx context.Context, offset, limit int) ([]*registry.RepositoryProperties, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repositories`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_on, last_updated_on, manifest_count, tag_count, delete_enabled, write_enabled
		FROM repositories
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var repos []*registry.RepositoryProperties
	for rows.Next() {
		var repo registry.RepositoryProperties
		err := rows.Scan(&repo.Name, &repo.CreatedOn, &repo.LastUpdatedOn, &repo.ManifestCount, &repo.TagCount, &repo.DeleteEnabled, &repo.WriteEnabled)
		if err != nil {
			return nil, 0, err
		}
		repos = append(repos, &repo)
	}

	return repos, total, rows.Err()
}

// CreateJob inserts a new job; an existing ID is a conflict
func (s *postgresStorage) CreateJob(ctx context.Context, job *batch.Job) error {
	query := `
		INSERT INTO jobs (id, display_name, pool_id, priority, state, creation_time, state_transition_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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
	if isUniqueViolation(err) {
		return apperrors.NewConflictError("job already exists")
	}
	return err
}

// GetJob retrieves a job by ID
func (s *postgresStorage) GetJob(ctx context.Context, id string) (*batch.Job, error) {
	var job batch.Job
	var displayName sql.NullString
	var state string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, pool_id, priority, state, creation_time, state_transition_time
		FROM jobs
		WHERE id = $1
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
func (s *postgresStorage) UpdateJobState(ctx context.Context, id string, state batch.JobState, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = $1, state_transition_time = $2 WHERE id = $3
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
func (s *postgresStorage) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
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
func (s *postgresStorage) ListJobs(ctx context.Context, offset, limit int) ([]*batch.Job, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, pool_id, priority, state, creation_time, state_transition_time
		FROM jobs
		ORDER BY creation_time, id
		LIMIT $1 OFFSET $2
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
func (s *postgresStorage) CreateQueue(ctx context.Context, name string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO queues (name, created_at) VALUES ($1, $2)`, name, createdAt)
	if isUniqueViolation(err) {
		return apperrors.NewConflictError("queue already exists")
	}
	return err
}

// GetQueue retrieves a queue with its current message count
func (s *postgresStorage) GetQueue(ctx context.Context, name string) (*queues.Queue, error) {
	var queue queues.Queue
	err := s.db.QueryRowContext(ctx, `
		SELECT q.name, q.created_at, COUNT(m.id)
		FROM queues q
		LEFT JOIN messages m ON m.queue = q.name
		WHERE q.name = $1
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
func (s *postgresStorage) DeleteQueue(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM queues WHERE name = $1`, name)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE queue = $1`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// ListQueues retrieves queues ordered by name, with the total count
func (s *postgresStorage) ListQueues(ctx context.Context, offset, limit int) ([]*queues.Queue, int, error) {
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
		LIMIT $1 OFFSET $2
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
func (s *postgresStorage) EnqueueMessage(ctx context.Context, queue string, msg *queues.Message) (*queues.Message, error) {
	if _, err := s.GetQueue(ctx, queue); err != nil {
		return nil, err
	}

	stored := *msg
	stored.ID = uuid.New().String()
	stored.EnqueuedAt = time.Now().UTC()
	stored.DeliveryCount = 0
	stored.LockToken = ""
	stored.LockedUntil = time.Time{}

	var expiresAt interface{}
	if stored.TimeToLive > 0 {
		expiresAt = stored.EnqueuedAt.Add(stored.TimeToLive)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (queue, id, body, content_type, enqueued_at, delivery_count, ttl, expires_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING seq
	`, queue, stored.ID, stored.Body, stored.ContentType, stored.EnqueuedAt, int64(stored.TimeToLive), expiresAt).Scan(&stored.SequenceNumber)
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

// LockNextMessage locks and returns the oldest available message, or nil
// when the queue is empty. Uses FOR UPDATE SKIP LOCKED so concurrent
// receivers never hand out the same message.
func (s *postgresStorage) LockNextMessage(ctx context.Context, queue string, lockDuration time.Duration) (*queues.Message, error) {
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
		WHERE queue = $1 AND (locked_until IS NULL OR locked_until <= $2)
			AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY seq
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, queue, now))
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
		UPDATE messages SET lock_token = $1, locked_until = $2, delivery_count = $3
		WHERE queue = $4 AND id = $5
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
func (s *postgresStorage) PeekNextMessage(ctx context.Context, queue string) (*queues.Message, error) {
	if _, err := s.GetQueue(ctx, queue); err != nil {
		return nil, err
	}

	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, seq, body, content_type, enqueued_at, delivery_count, lock_token, locked_until, ttl
		FROM messages
		WHERE queue = $1 AND (locked_until IS NULL OR locked_until <= $2)
			AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY seq
		LIMIT 1
	`, queue, time.Now().UTC()))
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
func (s *postgresStorage) DeleteMessage(ctx context.Context, queue, id, lockToken string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE queue = $1 AND id = $2 AND lock_token = $3 AND locked_until > $4
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
func (s *postgresStorage) UnlockMessage(ctx context.Context, queue, id, lockToken string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET lock_token = NULL, locked_until = NULL
		WHERE queue = $1 AND id = $2 AND lock_token = $3 AND locked_until > $4
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
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
