package models

import (
	"time"
)

// ModelStatus is the registry state of a trained model.
type ModelStatus string

const (
	ModelReady     ModelStatus = "ready"
	ModelDeployed  ModelStatus = "deployed"
	ModelRetrained ModelStatus = "retrained"
)

// ModelInfo is a registered training outcome that can be deployed and
// queried for predictions.
type ModelInfo struct {
	ID            string      `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	Type          ModelType   `json:"type" db:"type"`
	DatasetID     string      `json:"dataset_id" db:"dataset_id"`
	JobID         string      `json:"job_id" db:"job_id"`
	Status        ModelStatus `json:"status" db:"status"`
	Metrics       MetricMap   `json:"metrics" db:"metrics"`
	TotalProducts int         `json:"total_products" db:"total_products"`
	Parameters    Params      `json:"parameters" db:"parameters"`
	Tags          StringList  `json:"tags" db:"tags"`
	Description   string      `json:"description" db:"description"`
	ResultsFile   string      `json:"results_file,omitempty" db:"results_file"`
	ModelFile     string      `json:"model_file,omitempty" db:"model_file"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
	DeployedAt    *time.Time  `json:"deployed_at,omitempty" db:"deployed_at"`
}

// ModelUpdate carries optional metadata changes; nil fields are untouched.
type ModelUpdate struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=50"`
	Parameters  Params   `json:"parameters,omitempty"`
}

// Apply copies the set fields of u onto m.
func (u ModelUpdate) Apply(m *ModelInfo, now time.Time) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Tags != nil {
		m.Tags = StringList(u.Tags)
	}
	if u.Parameters != nil {
		m.Parameters = u.Parameters
	}
	m.UpdatedAt = now
}

// Deploy marks the model as serving predictions.
func (m *ModelInfo) Deploy(now time.Time) {
	m.Status = ModelDeployed
	m.DeployedAt = &now
	m.UpdatedAt = now
}

// Retire marks m as superseded by a retrained model. A retired model no
// longer serves, so its deployment time is cleared.
func (m *ModelInfo) Retire(now time.Time) {
	m.Status = ModelRetrained
	m.DeployedAt = nil
	m.UpdatedAt = now
}

// Metric returns the named average metric and whether it is present.
func (m *ModelInfo) Metric(name string) (float64, bool) {
	v, ok := m.Metrics[name]
	return v, ok
}
