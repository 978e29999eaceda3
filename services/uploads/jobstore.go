package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// JobStore keeps job state.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, bool, error)
}

// MemoryJobStore is used when Redis is unavailable. Jobs are only visible to this process.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: map[string]Job{}}
}

func (s *MemoryJobStore) Save(_ context.Context, job Job) error {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

const jobTTL = 24 * time.Hour

// RedisJobStore keeps each job in the hash upload:job:{id} for 24 hours.
type RedisJobStore struct {
	client *redis.Client
}

func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

func jobKey(id string) string {
	return "upload:job:" + id
}

func (s *RedisJobStore) Save(ctx context.Context, job Job) error {
	fields := map[string]interface{}{
		"id":         job.ID,
		"name":       job.Name,
		"status":     job.Status,
		"url":        job.URL,
		"public_id":  job.PublicID,
		"error":      job.Error,
		"created_at": job.CreatedAt.Format(time.RFC3339Nano),
	}
	if job.FinishedAt != nil {
		fields["finished_at"] = job.FinishedAt.Format(time.RFC3339Nano)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), fields)
	pipe.Expire(ctx, jobKey(job.ID), jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (Job, bool, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(vals) == 0 {
		return Job{}, false, nil
	}
	job := Job{
		ID:       vals["id"],
		Name:     vals["name"],
		Status:   vals["status"],
		URL:      vals["url"],
		PublicID: vals["public_id"],
		Error:    vals["error"],
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["created_at"]); err == nil {
		job.CreatedAt = t
	}
	if raw, ok := vals["finished_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			job.FinishedAt = &t
		}
	}
	return job, true, nil
}
