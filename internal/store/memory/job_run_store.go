package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// JobRunStore is an in-memory implementation of domain.JobRunStore.
type JobRunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   []domain.JobRun
}

// NewJobRunStore creates an empty job run log.
func NewJobRunStore() *JobRunStore {
	return &JobRunStore{}
}

var _ domain.JobRunStore = (*JobRunStore)(nil)

// Record appends run, assigning it the next id.
func (s *JobRunStore) Record(_ context.Context, run domain.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	s.runs = append(s.runs, run)
	return nil
}

// ListRecent returns runs newest first, optionally narrowed to one job.
func (s *JobRunStore) ListRecent(_ context.Context, job string, opts domain.ListOpts) ([]domain.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.JobRun
	for _, r := range s.runs {
		if job == "" || r.Job == job {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}
