package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"chronicle/server/jobs/domain"
	"chronicle/server/modules/pipeline"
	"chronicle/server/seedwork/infrastructure/metrics"
)

var _ pipeline.Scheduler = (*Scheduler)(nil)

// Scheduler is the Job Scheduler (§4.H): a ledger of dependency-graph
// nodes (domain.Job, persisted via Repository) fronting an asynq client
// that actually dispatches ready work. asynq has no notion of a
// dependency DAG, so the graph walk lives here: a job only reaches
// asynq once every entry in DependencyIDs has completed.
type Scheduler struct {
	Repo   domain.Repository
	Client *asynq.Client
}

func NewScheduler(repo domain.Repository, client *asynq.Client) *Scheduler {
	return &Scheduler{Repo: repo, Client: client}
}

// Submit inserts j into the ledger and, if it has no unresolved
// dependencies, enqueues it to asynq immediately.
func (s *Scheduler) Submit(ctx context.Context, j *domain.Job) error {
	if err := s.Repo.Insert(ctx, j); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if j.Status == domain.StatusPending {
		return s.dispatch(ctx, j)
	}
	return nil
}

// SubmitChain inserts a list of jobs, wiring job i+1 to depend on job i,
// and submits only the head (later jobs wait for OnComplete cascades).
// Each downstream job is seeded with the head's meta via CascadeFrom.
func (s *Scheduler) SubmitChain(ctx context.Context, chain []*domain.Job) error {
	if len(chain) == 0 {
		return nil
	}
	for i, j := range chain {
		if i > 0 {
			j.DependencyIDs = append(j.DependencyIDs, chain[i-1].GetID())
			j.Status = domain.StatusDeferred
			j.CascadeFrom(chain[0])
		}
	}
	for _, j := range chain {
		if err := s.Submit(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, j *domain.Job) error {
	payload, err := json.Marshal(j.Args)
	if err != nil {
		return fmt.Errorf("marshal job args: %w", err)
	}
	task := asynq.NewTask(string(j.Queue)+":"+j.Function, payload, asynq.TaskID(j.GetID()))
	info, err := s.Client.EnqueueContext(ctx, task,
		asynq.Queue(string(j.Queue)),
		asynq.MaxRetry(j.MaxRetries),
		asynq.Timeout(j.Timeout),
		asynq.Retention(j.ResultTTL),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	j.AsynqTaskID = info.ID
	metrics.JobsEnqueuedTotal.WithLabelValues(string(j.Queue), j.Function).Inc()
	return s.Repo.Save(ctx, j)
}

// OnComplete marks jobID completed and cascades to every dependent job:
// meta is copied forward via CascadeFrom and a dependent whose other
// dependencies are all complete is promoted from Deferred to Pending
// and dispatched. This is the completion hook referenced by handlers
// after a post-processing function returns successfully.
func (s *Scheduler) OnComplete(ctx context.Context, jobID string) error {
	j, err := s.Repo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("find completed job: %w", err)
	}
	j.Complete()
	if err := s.Repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save completed job: %w", err)
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(j.Queue), j.Function, "success").Inc()

	dependents, err := s.Repo.Dependents(ctx, jobID)
	if err != nil {
		return fmt.Errorf("find dependents: %w", err)
	}
	for _, dep := range dependents {
		dep.CascadeFrom(j)
		ready, err := s.dependenciesSatisfied(ctx, dep)
		if err != nil {
			return err
		}
		if !ready {
			if err := s.Repo.Save(ctx, dep); err != nil {
				return err
			}
			continue
		}
		dep.Status = domain.StatusPending
		if err := s.dispatch(ctx, dep); err != nil {
			return fmt.Errorf("dispatch dependent %s: %w", dep.GetID(), err)
		}
	}
	return nil
}

// OnFail marks jobID failed and, per the fail-fast default, permanently
// defers every downstream dependent rather than letting them wait
// forever on a dependency that will never complete.
func (s *Scheduler) OnFail(ctx context.Context, jobID, message string) error {
	j, err := s.Repo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("find failed job: %w", err)
	}
	j.Fail(message)
	if err := s.Repo.Save(ctx, j); err != nil {
		return err
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(j.Queue), j.Function, "failure").Inc()
	return s.deferDependentsForever(ctx, jobID, "upstream job failed: "+jobID)
}

func (s *Scheduler) deferDependentsForever(ctx context.Context, jobID, reason string) error {
	dependents, err := s.Repo.Dependents(ctx, jobID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		dep.DeferForever(reason)
		if err := s.Repo.Save(ctx, dep); err != nil {
			return err
		}
		if err := s.deferDependentsForever(ctx, dep.GetID(), reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) dependenciesSatisfied(ctx context.Context, j *domain.Job) (bool, error) {
	for _, depID := range j.DependencyIDs {
		dep, err := s.Repo.FindByID(ctx, depID)
		if err != nil {
			return false, fmt.Errorf("find dependency %s: %w", depID, err)
		}
		if dep.Status != domain.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// SelfZombied reports whether jobID's ledger row has vanished or been
// cancelled — the zombie check a long-running controller performs on
// itself each tick (§4.G.a).
func (s *Scheduler) SelfZombied(ctx context.Context, jobID string) (bool, error) {
	j, err := s.Repo.FindByID(ctx, jobID)
	if err != nil {
		return true, nil
	}
	return j.Status == domain.StatusCancelled, nil
}

// UpdateMeta merges fields into jobID's Extra bag and persists it.
func (s *Scheduler) UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error {
	j, err := s.Repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Extra == nil {
		j.Extra = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		j.Extra[k] = v
	}
	return s.Repo.Save(ctx, j)
}
