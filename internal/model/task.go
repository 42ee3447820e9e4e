package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/dispatch-gin/internal/geo"
	"gorm.io/datatypes"
)

// LocationReading 一次定位记录
type LocationReading struct {
	Latitude  float64    `json:"latitude" firestore:"latitude"`
	Longitude float64    `json:"longitude" firestore:"longitude"`
	Accuracy  float64    `json:"accuracy" firestore:"accuracy"`
	Timestamp *time.Time `json:"timestamp,omitempty" firestore:"timestamp,omitempty"`
}

// Task 任务,存储路径为 tasks/{assignedTo}/{id}
type Task struct {
	ID                string           `json:"id" firestore:"-"`
	Title             string           `json:"title" firestore:"title"`
	Location          string           `json:"location" firestore:"location"`
	Coordinates       geo.Point        `json:"coordinates" firestore:"coordinates"`
	Time              string           `json:"time" firestore:"time"`
	AssignedTo        string           `json:"assignedTo" firestore:"assignedTo"`
	AssignedBy        string           `json:"assignedBy" firestore:"assignedBy"`
	IsOnSite          bool             `json:"isOnSite" firestore:"isOnSite"`
	LastChecked       *time.Time       `json:"lastChecked" firestore:"lastChecked"`
	LastLocation      *LocationReading `json:"lastLocation" firestore:"lastLocation"`
	Completed         bool             `json:"completed" firestore:"completed"`
	CompletedAt       *time.Time       `json:"completedAt" firestore:"completedAt"`
	CompletedLocation *LocationReading `json:"completedLocation" firestore:"completedLocation"`
	CreatedAt         time.Time        `json:"createdAt" firestore:"createdAt"`
}

// TaskPath 任务在文档存储中的路径
func TaskPath(worker, id string) string {
	return fmt.Sprintf("tasks/%s/%s", worker, id)
}

// Validate 验证任务
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task ID is required")
	}
	if t.Title == "" {
		return errors.New("task title is required")
	}
	if t.AssignedTo == "" {
		return errors.New("task assignee is required")
	}
	return nil
}

// TaskUpdate 任务的部分更新,nil 字段不修改
type TaskUpdate struct {
	IsOnSite          *bool
	LastChecked       *time.Time
	LastLocation      *LocationReading
	Completed         *bool
	CompletedAt       *time.Time
	CompletedLocation *LocationReading
}

// Empty 是否没有任何字段
func (u *TaskUpdate) Empty() bool {
	return u == nil || len(u.Fields()) == 0
}

// Fields 文档存储使用的合并字段(camelCase)
func (u *TaskUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u == nil {
		return fields
	}
	if u.IsOnSite != nil {
		fields["isOnSite"] = *u.IsOnSite
	}
	if u.LastChecked != nil {
		fields["lastChecked"] = *u.LastChecked
	}
	if u.LastLocation != nil {
		fields["lastLocation"] = *u.LastLocation
	}
	if u.Completed != nil {
		fields["completed"] = *u.Completed
	}
	if u.CompletedAt != nil {
		fields["completedAt"] = *u.CompletedAt
	}
	if u.CompletedLocation != nil {
		fields["completedLocation"] = *u.CompletedLocation
	}
	return fields
}

// Apply 将更新合并到任务上
func (u *TaskUpdate) Apply(t *Task) {
	if u == nil || t == nil {
		return
	}
	if u.IsOnSite != nil {
		t.IsOnSite = *u.IsOnSite
	}
	if u.LastChecked != nil {
		checked := *u.LastChecked
		t.LastChecked = &checked
	}
	if u.LastLocation != nil {
		reading := *u.LastLocation
		t.LastLocation = &reading
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	if u.CompletedAt != nil {
		completedAt := *u.CompletedAt
		t.CompletedAt = &completedAt
	}
	if u.CompletedLocation != nil {
		reading := *u.CompletedLocation
		t.CompletedLocation = &reading
	}
}

// Columns 关系型存储使用的列更新
func (u *TaskUpdate) Columns() (map[string]interface{}, error) {
	columns := make(map[string]interface{})
	if u == nil {
		return columns, nil
	}
	if u.IsOnSite != nil {
		columns["is_on_site"] = *u.IsOnSite
	}
	if u.LastChecked != nil {
		columns["last_checked"] = *u.LastChecked
	}
	if u.LastLocation != nil {
		data, err := json.Marshal(u.LastLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal last location: %w", err)
		}
		columns["last_location"] = datatypes.JSON(data)
	}
	if u.Completed != nil {
		columns["completed"] = *u.Completed
	}
	if u.CompletedAt != nil {
		columns["completed_at"] = *u.CompletedAt
	}
	if u.CompletedLocation != nil {
		data, err := json.Marshal(u.CompletedLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal completed location: %w", err)
		}
		columns["completed_location"] = datatypes.JSON(data)
	}
	return columns, nil
}

// TaskModel 任务数据模型
type TaskModel struct {
	Worker            string         `gorm:"primaryKey;type:varchar(64)"`
	ID                string         `gorm:"primaryKey;type:varchar(64)"`
	Title             string         `gorm:"type:varchar(255);not null"`
	Location          string         `gorm:"type:text"`
	Latitude          float64        `gorm:"not null"`
	Longitude         float64        `gorm:"not null"`
	Time              string         `gorm:"type:varchar(32)"`
	AssignedBy        string         `gorm:"type:varchar(64);index"`
	IsOnSite          bool           `gorm:"not null;default:false"`
	LastChecked       *time.Time     // 最近一次确认时间
	LastLocation      datatypes.JSON // LocationReading
	Completed         bool           `gorm:"not null;default:false;index"`
	CompletedAt       *time.Time     `gorm:"index"`
	CompletedLocation datatypes.JSON // LocationReading
	CreatedAt         time.Time      `gorm:"not null;index"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// NewTaskModel 由任务构建数据模型
func NewTaskModel(t *Task) (*TaskModel, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	m := &TaskModel{
		Worker:      t.AssignedTo,
		ID:          t.ID,
		Title:       t.Title,
		Location:    t.Location,
		Latitude:    t.Coordinates.Latitude,
		Longitude:   t.Coordinates.Longitude,
		Time:        t.Time,
		AssignedBy:  t.AssignedBy,
		IsOnSite:    t.IsOnSite,
		LastChecked: t.LastChecked,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
	if t.LastLocation != nil {
		data, err := json.Marshal(t.LastLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal last location: %w", err)
		}
		m.LastLocation = data
	}
	if t.CompletedLocation != nil {
		data, err := json.Marshal(t.CompletedLocation)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal completed location: %w", err)
		}
		m.CompletedLocation = data
	}
	return m, nil
}

// ToTask 转换为任务
func (m *TaskModel) ToTask() (*Task, error) {
	t := &Task{
		ID:          m.ID,
		Title:       m.Title,
		Location:    m.Location,
		Coordinates: geo.Point{Latitude: m.Latitude, Longitude: m.Longitude},
		Time:        m.Time,
		AssignedTo:  m.Worker,
		AssignedBy:  m.AssignedBy,
		IsOnSite:    m.IsOnSite,
		LastChecked: m.LastChecked,
		Completed:   m.Completed,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
	}
	if len(m.LastLocation) > 0 && string(m.LastLocation) != "null" {
		var reading LocationReading
		if err := json.Unmarshal(m.LastLocation, &reading); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last location: %w", err)
		}
		t.LastLocation = &reading
	}
	if len(m.CompletedLocation) > 0 && string(m.CompletedLocation) != "null" {
		var reading LocationReading
		if err := json.Unmarshal(m.CompletedLocation, &reading); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed location: %w", err)
		}
		t.CompletedLocation = &reading
	}
	return t, nil
}
