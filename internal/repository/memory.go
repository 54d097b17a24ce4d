package repository

import (
	"context"
	"sort"
	"sync"

	"demand-forecast/internal/models"
)

// memoryStore keeps registries in process. Records are copied on the way
// in and out so callers never share state with the store.
type memoryStore struct {
	mu       sync.RWMutex
	datasets map[string]*models.DatasetInfo
	jobs     map[string]*models.TrainingJob
	models   map[string]*models.ModelInfo
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		datasets: make(map[string]*models.DatasetInfo),
		jobs:     make(map[string]*models.TrainingJob),
		models:   make(map[string]*models.ModelInfo),
	}
}

func (s *memoryStore) CreateDataset(ctx context.Context, d *models.DatasetInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[d.ID]; ok {
		return &ConflictError{Resource: "dataset", ID: d.ID}
	}
	s.datasets[d.ID] = cloneDataset(d)
	return nil
}

func (s *memoryStore) GetDataset(ctx context.Context, id string) (*models.DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[id]
	if !ok {
		return nil, &NotFoundError{Resource: "dataset", ID: id}
	}
	return cloneDataset(d), nil
}

func (s *memoryStore) ListDatasets(ctx context.Context) ([]*models.DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DatasetInfo, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, cloneDataset(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpdateDataset(ctx context.Context, d *models.DatasetInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[d.ID]; !ok {
		return &NotFoundError{Resource: "dataset", ID: d.ID}
	}
	s.datasets[d.ID] = cloneDataset(d)
	return nil
}

func (s *memoryStore) DeleteDataset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return &NotFoundError{Resource: "dataset", ID: id}
	}
	delete(s.datasets, id)
	return nil
}

func (s *memoryStore) CreateJob(ctx context.Context, job *models.TrainingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return &ConflictError{Resource: "training_job", ID: job.ID}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memoryStore) GetJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, &NotFoundError{Resource: "training_job", ID: id}
	}
	return job.Clone(), nil
}

func (s *memoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.TrainingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TrainingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.matches(job) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpdateJob(ctx context.Context, job *models.TrainingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return &NotFoundError{Resource: "training_job", ID: job.ID}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memoryStore) CreateModel(ctx context.Context, m *models.ModelInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[m.ID]; ok {
		return &ConflictError{Resource: "model", ID: m.ID}
	}
	s.models[m.ID] = cloneModel(m)
	return nil
}

func (s *memoryStore) GetModel(ctx context.Context, id string) (*models.ModelInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[id]
	if !ok {
		return nil, &NotFoundError{Resource: "model", ID: id}
	}
	return cloneModel(m), nil
}

func (s *memoryStore) ListModels(ctx context.Context, filter ModelFilter) ([]*models.ModelInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ModelInfo, 0, len(s.models))
	for _, m := range s.models {
		if filter.matches(m) {
			out = append(out, cloneModel(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpdateModel(ctx context.Context, m *models.ModelInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[m.ID]; !ok {
		return &NotFoundError{Resource: "model", ID: m.ID}
	}
	s.models[m.ID] = cloneModel(m)
	return nil
}

func (s *memoryStore) DeleteModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[id]; !ok {
		return &NotFoundError{Resource: "model", ID: id}
	}
	delete(s.models, id)
	return nil
}

func (s *memoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *memoryStore) Close() error {
	return nil
}

func cloneDataset(d *models.DatasetInfo) *models.DatasetInfo {
	c := *d
	c.Tags = append(models.StringList(nil), d.Tags...)
	return &c
}

func cloneModel(m *models.ModelInfo) *models.ModelInfo {
	c := *m
	c.Tags = append(models.StringList(nil), m.Tags...)
	if m.Metrics != nil {
		c.Metrics = make(models.MetricMap, len(m.Metrics))
		for k, v := range m.Metrics {
			c.Metrics[k] = v
		}
	}
	if m.Parameters != nil {
		c.Parameters = make(models.Params, len(m.Parameters))
		for k, v := range m.Parameters {
			c.Parameters[k] = v
		}
	}
	if m.DeployedAt != nil {
		t := *m.DeployedAt
		c.DeployedAt = &t
	}
	return &c
}
