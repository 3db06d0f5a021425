package models

import "time"

// ModelKind enumerates the model families tracked by the registry.
type ModelKind string

const (
	ModelKindForecaster ModelKind = "forecaster"
	ModelKindEmbedder   ModelKind = "embedder"
)

// ModelStatus captures a model version's lifecycle state. Status is the only
// mutable field; transitions are performed by the external training
// collaborator through the registry, never by the pipeline itself.
type ModelStatus string

const (
	ModelStatusCandidate ModelStatus = "candidate"
	ModelStatusActive    ModelStatus = "active"
	ModelStatusRetired   ModelStatus = "retired"
)

// ModelRecord describes one trained model version. At most one record per kind
// is active at any time after initialisation.
type ModelRecord struct {
	Kind    ModelKind
	Version string
	BuiltAt time.Time
	Status  ModelStatus
}
