package domain

import "context"

// Repository persists the job ledger backing the dependency graph.
// The scheduler (infrastructure) is the only caller; handlers never
// touch this directly.
type Repository interface {
	Insert(ctx context.Context, j *Job) error
	FindByID(ctx context.Context, id string) (*Job, error)
	Save(ctx context.Context, j *Job) error

	// Dependents returns every job whose DependencyIDs contains id.
	Dependents(ctx context.Context, id string) ([]*Job, error)
}
