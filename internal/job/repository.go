package job

import (
	"context"
	"errors"
)

// Static errors for job persistence.
var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose ID is already taken.
	ErrJobExists = errors.New("job already exists")
	// ErrVersionConflict is returned when a conditional update loses against
	// a concurrent writer. Callers recover by re-reading the record and
	// re-deriving their decision from fresh state; the conflict is never
	// surfaced outside the orchestration core.
	ErrVersionConflict = errors.New("job version conflict")
)

// Repository defines the persistence port for jobs. Every mutation after
// creation is conditional: Update succeeds only if the stored record still
// carries the version the caller read, which is what makes the forward-only
// and invoke-combination-at-most-once invariants enforceable under
// overlapping orchestration ticks.
type Repository interface {
	// Create persists a new job. Returns ErrJobExists if the ID is taken.
	Create(ctx context.Context, j *Job) error

	// Get retrieves a job by ID. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, id string) (*Job, error)

	// Update writes the job back if and only if the stored version equals
	// j.Version; on success the stored version becomes j.Version+1 and
	// j.Version is bumped to match. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, j *Job) error

	// List returns all jobs.
	List(ctx context.Context) ([]*Job, error)
}
