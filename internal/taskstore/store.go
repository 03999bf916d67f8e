package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrTaskExists is returned by AddTask when a task with the same id is
// already present.
var ErrTaskExists = errors.New("taskstore: task already exists")

// Store is the durable persistence port the Action Runner relies on.
type Store interface {
	GetAllTasks(ctx context.Context, from, to time.Time) ([]Task, error)
	GetActiveTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	AddTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
}

// taskRecord is the GORM row shape. Task payload and resource tags are
// kept as JSON text columns, the same "stringify the irregular part" idiom
// used for big.Int fields elsewhere in this codebase.
type taskRecord struct {
	ID             string `gorm:"primaryKey"`
	DefinitionName string `gorm:"index;not null"`
	StartedAt      int64  `gorm:"index:idx_status_started,priority:2;not null"`
	LastUpdatedAt  int64  `gorm:"not null"`
	FinishedAt     *int64
	Status         string `gorm:"index:idx_status_started,priority:1;not null"`
	StatusMessage  string
	ResourcesTaken string `gorm:"type:text;not null"`
	TaskData       string `gorm:"type:text;not null"`
}

func (taskRecord) TableName() string { return "tasks" }

func toRecord(t *Task) (*taskRecord, error) {
	resources, err := json.Marshal(t.ResourcesTaken)
	if err != nil {
		return nil, fmt.Errorf("marshal resourcesTaken: %w", err)
	}
	data := t.TaskData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return &taskRecord{
		ID:             t.ID,
		DefinitionName: t.DefinitionName,
		StartedAt:      t.StartedAt,
		LastUpdatedAt:  t.LastUpdatedAt,
		FinishedAt:     t.FinishedAt,
		Status:         string(t.Status),
		StatusMessage:  t.StatusMessage,
		ResourcesTaken: string(resources),
		TaskData:       string(data),
	}, nil
}

func fromRecord(r *taskRecord) (*Task, error) {
	var resources []string
	if err := json.Unmarshal([]byte(r.ResourcesTaken), &resources); err != nil {
		return nil, fmt.Errorf("unmarshal resourcesTaken: %w", err)
	}
	return &Task{
		ID:             r.ID,
		DefinitionName: r.DefinitionName,
		StartedAt:      r.StartedAt,
		LastUpdatedAt:  r.LastUpdatedAt,
		FinishedAt:     r.FinishedAt,
		Status:         Status(r.Status),
		StatusMessage:  r.StatusMessage,
		ResourcesTaken: resources,
		TaskData:       json.RawMessage(r.TaskData),
	}, nil
}

// SQLiteStore is the gorm.io/gorm + gorm.io/driver/sqlite implementation of
// Store, swapped in for a gorm+MySQL asset-snapshot pattern because §6.3
// calls for a single-file, WAL-journaled store rather than a
// server-backed one.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if necessary) a single sqlite file with
// write-ahead journaling enabled and migrates the tasks table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		return nil, fmt.Errorf("migrate task store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAllTasks returns tasks started in [from, to), newest first. A zero
// value for to means "no upper bound".
func (s *SQLiteStore) GetAllTasks(ctx context.Context, from, to time.Time) ([]Task, error) {
	q := s.db.WithContext(ctx).Where("started_at >= ?", from.UnixMilli())
	if !to.IsZero() {
		q = q.Where("started_at < ?", to.UnixMilli())
	}
	var records []taskRecord
	if err := q.Order("started_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getAllTasks: %w", err)
	}
	return toTasks(records)
}

// GetActiveTasks returns tasks with status in {pre-start, running}, oldest
// first, so the runner processes longer-running tasks before newer ones.
func (s *SQLiteStore) GetActiveTasks(ctx context.Context) ([]Task, error) {
	var records []taskRecord
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(StatusPreStart), string(StatusRunning)}).
		Order("started_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("getActiveTasks: %w", err)
	}
	return toTasks(records)
}

// GetTask returns nil, nil if no task with that id exists.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var record taskRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getTask: %w", err)
	}
	return fromRecord(&record)
}

// AddTask inserts a new task. A collision on id is reported as ErrTaskExists.
func (s *SQLiteStore) AddTask(ctx context.Context, task *Task) error {
	record, err := toRecord(task)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrTaskExists
		}
		return fmt.Errorf("addTask: %w", result.Error)
	}
	return nil
}

// UpdateTask updates a task by id. A missing row is logged as a warning,
// not returned as an error, per §4.7's operation table.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *Task) error {
	record, err := toRecord(task)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&taskRecord{}).Where("id = ?", task.ID).Updates(record)
	if result.Error != nil {
		return fmt.Errorf("updateTask: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Warn().Str("taskId", task.ID).Msg("updateTask: no matching row")
	}
	return nil
}

func toTasks(records []taskRecord) ([]Task, error) {
	tasks := make([]Task, 0, len(records))
	for i := range records {
		t, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}
