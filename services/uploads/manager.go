// Package uploads runs file uploads in a bounded worker pool and tracks each
// one as a job whose status can be polled or awaited.
package uploads

import (
	"context"
	"sync"
	"time"

	"campusdesk_go/metrics"
	"campusdesk_go/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

var (
	ErrJobNotFound = errors.New("upload job not found")
	ErrClosed      = errors.New("upload manager is closed")
	ErrEmptyFile   = errors.New("empty file")
)

// Job is the observable state of one upload.
type Job struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	URL        string     `json:"url,omitempty"`
	PublicID   string     `json:"public_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the job reached done or failed.
func (j Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Request is one file to upload.
type Request struct {
	Name   string
	Folder string
	Kind   storage.Kind
	Data   []byte
}

type task struct {
	job    Job
	req    Request
	onDone func(Job)
}

// Manager owns the worker pool.
type Manager struct {
	files storage.FileStore
	jobs  JobStore
	queue chan task

	mu   sync.Mutex
	done map[string]chan struct{}

	// closeMu guards queue against a send after Close.
	closeMu sync.RWMutex
	closed  bool

	wg      sync.WaitGroup
	timeout time.Duration
}

// NewManager starts workers goroutines. Close stops them after the queue drains.
func NewManager(files storage.FileStore, jobs JobStore, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		files:   files,
		jobs:    jobs,
		queue:   make(chan task, workers*16),
		done:    map[string]chan struct{}{},
		timeout: 2 * time.Minute,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Submit queues an upload and returns the pending job right away.
// onDone runs on the worker after the final state is stored.
func (m *Manager) Submit(ctx context.Context, req Request, onDone func(Job)) (Job, error) {
	if len(req.Data) == 0 {
		return Job{}, ErrEmptyFile
	}
	job := Job{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return Job{}, ErrClosed
	}

	m.mu.Lock()
	m.done[job.ID] = make(chan struct{})
	m.mu.Unlock()

	if err := m.jobs.Save(ctx, job); err != nil {
		m.forget(job.ID)
		return Job{}, errors.Wrap(err, "save upload job")
	}

	select {
	case m.queue <- task{job: job, req: req, onDone: onDone}:
		return job, nil
	case <-ctx.Done():
		m.forget(job.ID)
		return Job{}, ctx.Err()
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.done, id)
	m.mu.Unlock()
}

// Get returns the current state of a job.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	job, ok, err := m.jobs.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// Wait blocks until the job finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	ch, local := m.done[id]
	m.mu.Unlock()

	if local {
		select {
		case <-ch:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
		return m.Get(ctx, id)
	}

	// Submitted elsewhere or already finished: poll the store.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.Get(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

// Close stops accepting jobs and waits for the workers to finish the queue.
func (m *Manager) Close() {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.queue {
		m.run(t)
	}
}

func (m *Manager) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	job := t.job
	job.Status = StatusRunning
	if err := m.jobs.Save(ctx, job); err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("failed to mark upload running")
	}

	stored, err := m.upload(ctx, t.req)
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		logrus.WithError(err).WithFields(logrus.Fields{"job_id": job.ID, "name": job.Name}).Error("upload failed")
	} else {
		job.Status = StatusDone
		job.URL = stored.URL
		job.PublicID = stored.PublicID
	}
	metrics.UploadJobs.WithLabelValues(job.Status).Inc()

	if err := m.jobs.Save(ctx, job); err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Error("failed to store upload result")
	}
	if t.onDone != nil {
		m.callback(t.onDone, job)
	}

	m.mu.Lock()
	if ch, ok := m.done[job.ID]; ok {
		close(ch)
		delete(m.done, job.ID)
	}
	m.mu.Unlock()
}

func (m *Manager) upload(ctx context.Context, req Request) (stored storage.Stored, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("upload panic: %v", r)
		}
	}()
	return m.files.Upload(ctx, req.Folder, req.Name, req.Data, req.Kind)
}

func (m *Manager) callback(fn func(Job), job Job) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).WithField("job_id", job.ID).Error("upload callback panicked")
		}
	}()
	fn(job)
}
