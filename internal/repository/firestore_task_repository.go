package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/mautops/dispatch-gin/internal/geo"
	"github.com/mautops/dispatch-gin/internal/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreWorkers = "workers"
	firestoreTasks   = "tasks"
)

// firestoreTask Firestore 文档结构,坐标以 GeoPoint 存储
type firestoreTask struct {
	Title             string                 `firestore:"title"`
	Location          string                 `firestore:"location"`
	Coordinates       *latlng.LatLng         `firestore:"coordinates"`
	Time              string                 `firestore:"time"`
	AssignedTo        string                 `firestore:"assignedTo"`
	AssignedBy        string                 `firestore:"assignedBy"`
	IsOnSite          bool                   `firestore:"isOnSite"`
	LastChecked       *time.Time             `firestore:"lastChecked"`
	LastLocation      *model.LocationReading `firestore:"lastLocation"`
	Completed         bool                   `firestore:"completed"`
	CompletedAt       *time.Time             `firestore:"completedAt"`
	CompletedLocation *model.LocationReading `firestore:"completedLocation"`
	CreatedAt         time.Time              `firestore:"createdAt"`
}

func toFirestoreTask(t *model.Task) *firestoreTask {
	return &firestoreTask{
		Title:             t.Title,
		Location:          t.Location,
		Coordinates:       &latlng.LatLng{Latitude: t.Coordinates.Latitude, Longitude: t.Coordinates.Longitude},
		Time:              t.Time,
		AssignedTo:        t.AssignedTo,
		AssignedBy:        t.AssignedBy,
		IsOnSite:          t.IsOnSite,
		LastChecked:       t.LastChecked,
		LastLocation:      t.LastLocation,
		Completed:         t.Completed,
		CompletedAt:       t.CompletedAt,
		CompletedLocation: t.CompletedLocation,
		CreatedAt:         t.CreatedAt,
	}
}

func (ft *firestoreTask) toTask(id string) *model.Task {
	t := &model.Task{
		ID:                id,
		Title:             ft.Title,
		Location:          ft.Location,
		Time:              ft.Time,
		AssignedTo:        ft.AssignedTo,
		AssignedBy:        ft.AssignedBy,
		IsOnSite:          ft.IsOnSite,
		LastChecked:       ft.LastChecked,
		LastLocation:      ft.LastLocation,
		Completed:         ft.Completed,
		CompletedAt:       ft.CompletedAt,
		CompletedLocation: ft.CompletedLocation,
		CreatedAt:         ft.CreatedAt,
	}
	if ft.Coordinates != nil {
		t.Coordinates = geo.Point{Latitude: ft.Coordinates.Latitude, Longitude: ft.Coordinates.Longitude}
	}
	return t
}

// firestoreTaskRepository 基于 Firestore 的任务仓储
//
// 数据布局为 workers/{worker}/tasks/{id},全部任务通过集合组查询读取。
type firestoreTaskRepository struct {
	client *firestore.Client
}

// NewFirestoreTaskRepository 创建 Firestore 任务仓储
func NewFirestoreTaskRepository(client *firestore.Client) TaskRepository {
	return &firestoreTaskRepository{client: client}
}

func (r *firestoreTaskRepository) doc(worker, id string) *firestore.DocumentRef {
	return r.client.Collection(firestoreWorkers).Doc(worker).Collection(firestoreTasks).Doc(id)
}

func (r *firestoreTaskRepository) query(worker string) firestore.Query {
	if worker == "" {
		return r.client.CollectionGroup(firestoreTasks).Query
	}
	return r.client.Collection(firestoreWorkers).Doc(worker).Collection(firestoreTasks).Query
}

// Create 保存新任务
func (r *firestoreTaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if _, err := r.doc(task.AssignedTo, task.ID).Create(ctx, toFirestoreTask(task)); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get 读取单个任务
func (r *firestoreTaskRepository) Get(ctx context.Context, worker, id string) (*model.Task, error) {
	snap, err := r.doc(worker, id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeFirestoreTask(snap)
}

// List 列出工人的任务,worker 为空时列出全部
func (r *firestoreTaskRepository) List(ctx context.Context, worker string) ([]*model.Task, error) {
	iter := r.query(worker).Documents(ctx)
	defer iter.Stop()

	tasks := make([]*model.Task, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		task, err := decodeFirestoreTask(snap)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks, nil
}

// Update 合并更新任务字段,文档不存在时返回 ErrTaskNotFound
func (r *firestoreTaskRepository) Update(ctx context.Context, worker, id string, upd *model.TaskUpdate) error {
	fields := upd.Fields()
	if len(fields) == 0 {
		return nil
	}

	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	updates := make([]firestore.Update, 0, len(paths))
	for _, path := range paths {
		updates = append(updates, firestore.Update{Path: path, Value: fields[path]})
	}

	_, err := r.doc(worker, id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// Subscribe 订阅任务子树变化
func (r *firestoreTaskRepository) Subscribe(ctx context.Context, worker string, onChange func([]*model.Task)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := r.query(worker).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					logrus.WithError(err).WithField("worker", worker).Warn("task snapshot stream stopped")
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				logrus.WithError(err).Warn("failed to read task snapshot")
				continue
			}
			tasks := make([]*model.Task, 0, len(docs))
			for _, doc := range docs {
				task, err := decodeFirestoreTask(doc)
				if err != nil {
					logrus.WithError(err).WithField("doc", doc.Ref.Path).Warn("skipping malformed task")
					continue
				}
				tasks = append(tasks, task)
			}
			sortTasks(tasks)
			onChange(tasks)
		}
	}()

	return Unsubscribe(cancel), nil
}

func decodeFirestoreTask(snap *firestore.DocumentSnapshot) (*model.Task, error) {
	var ft firestoreTask
	if err := snap.DataTo(&ft); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", snap.Ref.ID, err)
	}
	task := ft.toTask(snap.Ref.ID)
	if task.AssignedTo == "" && snap.Ref.Parent != nil && snap.Ref.Parent.Parent != nil {
		task.AssignedTo = snap.Ref.Parent.Parent.ID
	}
	return task, nil
}
