// Package taskstore persists the lifecycle state of actions run by the
// Action Runner: one row per task, durable across process restarts.
//
// Follows a gorm model + AutoMigrate idiom with big.Int-as-string
// persistence, generalized to the Task shape this agent needs, and
// cklxx-elephant.ai's internal/domain/task Store port for the shape of
// the interface — cut down to the five operations this system actually
// names (no lease/claim machinery: this system has one writer).
package taskstore

import (
	"encoding/json"
)

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPreStart  Status = "pre-start"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// IsActive reports whether a task in this status counts toward resource
// locking and the active-task set the runner re-derives each tick.
func (s Status) IsActive() bool {
	return s == StatusPreStart || s == StatusRunning
}

// IsTerminal is the complement of IsActive.
func (s Status) IsTerminal() bool {
	return !s.IsActive()
}

// TxTaskData is the shared tail of payloads for actions that submit an
// on-chain transaction.
type TxTaskData struct {
	Hash string `json:"hash,omitempty"`
}

// Task is one row of the Task Store: the durable lifecycle state of one
// action instance.
type Task struct {
	ID             string
	DefinitionName string
	StartedAt      int64 // epoch ms
	LastUpdatedAt  int64 // epoch ms
	FinishedAt     *int64
	Status         Status
	StatusMessage  string
	ResourcesTaken []string
	TaskData       json.RawMessage
}

// DecodeTaskData unmarshals the task's opaque payload into dst. Each action
// definition decodes into its own typed struct; the runner itself never
// looks inside taskData.
func (t *Task) DecodeTaskData(dst any) error {
	if len(t.TaskData) == 0 {
		return nil
	}
	return json.Unmarshal(t.TaskData, dst)
}

// EncodeTaskData marshals src into the task's opaque payload.
func (t *Task) EncodeTaskData(src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	t.TaskData = data
	return nil
}

