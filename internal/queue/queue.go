package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

const DefaultMaxSize = 1000

// Task asks a worker to resolve URL into the placeholder snapshot SnapshotID.
type Task struct {
	ID         string    `json:"id"`
	SnapshotID uuid.UUID `json:"snapshot_id"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTask(snapshotID uuid.UUID, rawURL string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		SnapshotID: snapshotID,
		URL:        rawURL,
		CreatedAt:  time.Now().UTC(),
	}
}

type Queue interface {
	Push(ctx context.Context, task *Task) error
	// Pop blocks until a task is available, the queue is closed or ctx ends.
	Pop(ctx context.Context) (*Task, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is a bounded FIFO for single-process deployments.
type MemoryQueue struct {
	tasks  chan *Task
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(maxSize int) *MemoryQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryQueue{
		tasks: make(chan *Task, maxSize),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(_ context.Context, task *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Task, error) {
	// Drain buffered tasks first so Close does not drop accepted work.
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}

	select {
	case task := <-q.tasks:
		return task, nil
	case <-q.done:
		select {
		case task := <-q.tasks:
			return task, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Size(context.Context) (int, error) {
	return len(q.tasks), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
