// Package domain models the Job Scheduler's ledger entity (§4.H),
// generalizing the teacher's seedwork ProcessingJob (single status enum,
// flat payload) into a dependency-graph node with cascading meta.
package domain

import (
	"time"

	"chronicle/server/seedwork/domain"
)

// Status is the closed set of job states. Pending/Processing/Completed/
// Failed mirror the teacher's ProcessingJobStatus; Deferred and
// DeferredForever are new, modeling a job waiting on dependencies and a
// job whose dependency chain has permanently failed (§4.H fail-fast
// policy), and Cancelled models an operator cancellation (§4.H, §5).
type Status string

const (
	StatusDeferred        Status = "deferred"
	StatusPending         Status = "pending"
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusDeferredForever Status = "deferred_forever"
	StatusCancelled       Status = "cancelled"
)

// Queue is the closed set of named queues from §4.H.
type Queue string

const (
	QueueDefault       Queue = "default"
	QueueTranscription Queue = "transcription"
	QueueMemory        Queue = "memory"
)

// Priority realizes §4.H's informative URGENT>HIGH>NORMAL>LOW ordering.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Job is one node in the dependency graph enqueued by the Conversation
// Controller (§4.G) and driven by post-processing handlers (§4.I).
// Well-known meta fields (§3's Job entity) are first-class; Extra is the
// open-ended bag for anything else (SPEC_FULL's §9 resolution of the
// "dynamic attribute bags" design note).
type Job struct {
	domain.BaseEntity

	Queue          Queue          `json:"queue" gorm:"column:queue;not null"`
	Function       string         `json:"function" gorm:"column:function;not null"`
	Args           map[string]any `json:"args" gorm:"column:args;type:jsonb;serializer:json"`
	Priority       Priority       `json:"priority" gorm:"column:priority;not null"`
	DependencyIDs  []string       `json:"dependency_ids" gorm:"column:dependency_ids;type:jsonb;serializer:json"`
	Timeout        time.Duration  `json:"timeout" gorm:"column:timeout"`
	ResultTTL      time.Duration  `json:"result_ttl" gorm:"column:result_ttl"`

	AudioUUID      string         `json:"audio_uuid" gorm:"column:audio_uuid;index"`
	ConversationID string         `json:"conversation_id,omitempty" gorm:"column:conversation_id;index"`
	ClientID       string         `json:"client_id,omitempty" gorm:"column:client_id"`
	Extra          map[string]any `json:"extra,omitempty" gorm:"column:extra;type:jsonb;serializer:json"`

	Status       Status     `json:"status" gorm:"column:status;not null"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	RetryCount   int        `json:"retry_count" gorm:"column:retry_count;default:0"`
	MaxRetries   int        `json:"max_retries" gorm:"column:max_retries"`
	ScheduledAt  time.Time  `json:"scheduled_at" gorm:"column:scheduled_at;not null"`
	StartedAt    *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`

	// AsynqTaskID correlates this ledger row to its underlying asynq task
	// once it is actually enqueued (a Deferred job has none yet).
	AsynqTaskID string `json:"asynq_task_id,omitempty" gorm:"column:asynq_task_id"`
}

// TableName sets the table name for GORM.
func (Job) TableName() string { return "jobs" }

// New creates a job row. If dependencyIDs is non-empty the job starts
// Deferred; otherwise it starts Pending and is immediately enqueueable.
func New(queue Queue, function string, args map[string]any, meta Meta, dependencyIDs []string) *Job {
	status := StatusPending
	if len(dependencyIDs) > 0 {
		status = StatusDeferred
	}
	j := &Job{
		Queue:          queue,
		Function:       function,
		Args:           args,
		Priority:       PriorityNormal,
		DependencyIDs:  dependencyIDs,
		AudioUUID:      meta.AudioUUID,
		ConversationID: meta.ConversationID,
		ClientID:       meta.ClientID,
		Extra:          meta.Extra,
		Status:         status,
		ScheduledAt:    time.Now(),
	}
	j.SetID(domain.GenerateID())
	return j
}

// Meta is the well-known cascade payload from §3's Job entity.
type Meta struct {
	AudioUUID      string
	ConversationID string
	ClientID       string
	Extra          map[string]any
}

// CascadeFrom copies AudioUUID/ConversationID/ClientID from an upstream
// job onto j, filling in only fields j does not already have — the
// cascade described in §3 and the GLOSSARY.
func (j *Job) CascadeFrom(upstream *Job) {
	if j.AudioUUID == "" {
		j.AudioUUID = upstream.AudioUUID
	}
	if j.ConversationID == "" {
		j.ConversationID = upstream.ConversationID
	}
	if j.ClientID == "" {
		j.ClientID = upstream.ClientID
	}
}

func (j *Job) Start() {
	j.Status = StatusProcessing
	now := time.Now()
	j.StartedAt = &now
}

func (j *Job) Complete() {
	j.Status = StatusCompleted
	now := time.Now()
	j.CompletedAt = &now
}

func (j *Job) Fail(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	now := time.Now()
	j.CompletedAt = &now
}

func (j *Job) DeferForever(reason string) {
	j.Status = StatusDeferredForever
	j.ErrorMessage = reason
	now := time.Now()
	j.CompletedAt = &now
}

func (j *Job) CanRetry() bool { return j.RetryCount < j.MaxRetries }

func (j *Job) Retry() {
	j.RetryCount++
	j.Status = StatusPending
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
}

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusDeferredForever, StatusCancelled:
		return true
	default:
		return false
	}
}
