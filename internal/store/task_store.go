package store

import (
	"context"
	"fmt"

	"trackmyteam/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStore 读写 tasks 表。
//
// 读取单个任务或列表时会预加载所属用户，用于返回 owner_username。
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create 插入任务，写入后 task.ID 由数据库分配。
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *TaskStore) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).Preload("User").First(&task, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// ListByOwner 按 id 升序返回某个用户的全部任务。
func (s *TaskStore) ListByOwner(ctx context.Context, ownerID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("user_id = ?", ownerID).
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Save 整体替换可编辑字段（标题、描述、截止时间、状态），归属不变。
//
// 空描述与空截止时间同样会被写入。
func (s *TaskStore) Save(ctx context.Context, task *model.Task) error {
	err := s.db.WithContext(ctx).
		Model(&model.Task{ID: task.ID}).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"deadline":    task.Deadline,
			"status":      task.Status,
		}).Error
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Delete 删除任务，任务不存在时返回 model.ErrNotFound。
func (s *TaskStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Task{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListReminderCandidates 全表读取任务及其所属用户邮箱。
//
// 时间窗口在内存中过滤，这里不做任何筛选。
func (s *TaskStore) ListReminderCandidates(ctx context.Context) ([]model.ReminderCandidate, error) {
	var out []model.ReminderCandidate
	err := s.db.WithContext(ctx).
		Table("tasks").
		Select("tasks.id AS task_id, tasks.title AS title, tasks.deadline AS deadline, users.email AS owner_email").
		Joins("JOIN users ON users.id = tasks.user_id").
		Order("tasks.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	return out, nil
}
