package storage

import (
	"context"
	"time"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/appconfig"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/queues"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/registry"
)

// Storage is the abstract interface for the persistence layer. Lookups for
// rows that do not exist return a NOT_FOUND *errors.AppError.
type Storage interface {
	// Configuration setting operations
	GetSetting(ctx context.Context, key, label string) (*appconfig.Setting, error)
	UpsertSetting(ctx context.Context, setting *appconfig.Setting) error
	DeleteSetting(ctx context.Context, key, label string) error
	ListSettings(ctx context.Context, keyFilter, labelFilter string, offset, limit int) ([]*appconfig.Setting, int, error)

	// Container repository operations
	GetRepository(ctx context.Context, name string) (*registry.RepositoryProperties, error)
	SaveRepository(ctx context.Context, repo *registry.RepositoryProperties) error
	DeleteRepository(ctx context.Context, name string) error
	ListRepositories(ctx context.Context, offset, limit int) ([]*registry.RepositoryProperties, int, error)

	// Batch job operations
	CreateJob(ctx context.Context, job *batch.Job) error
	GetJob(ctx context.Context, id string) (*batch.Job, error)
	UpdateJobState(ctx context.Context, id string, state batch.JobState, at time.Time) error
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, offset, limit int) ([]*batch.Job, int, error)

	// Queue operations
	CreateQueue(ctx context.Context, name string, createdAt time.Time) error
	GetQueue(ctx context.Context, name string) (*queues.Queue, error)
	DeleteQueue(ctx context.Context, name string) error
	ListQueues(ctx context.Context, offset, limit int) ([]*queues.Queue, int, error)

	// Message operations
	EnqueueMessage(ctx context.Context, queue string, msg *queues.Message) (*queues.Message, error)
	LockNextMessage(ctx context.Context, queue string, lockDuration time.Duration) (*queues.Message, error)
	PeekNextMessage(ctx context.Context, queue string) (*queues.Message, error)
	DeleteMessage(ctx context.Context, queue, id, lockToken string) error
	UnlockMessage(ctx context.Context, queue, id, lockToken string) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
