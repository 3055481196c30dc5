package model

import "context"

// FeatureRecord is one persisted model entry: the ordered atomic feature
// names making up a JProduct, and its weight (SPEC_FULL.md §6). Zero-weight
// features are omitted by World.ModelRecords before records reach a Store;
// the Store implementations save every record they are given.
type FeatureRecord struct {
	Features []string
	Weight   float64
}

// Store persists and restores a Model as an ordered list of FeatureRecords,
// keyed by feature name rather than J so that a model can be reloaded after
// the feature universe has been renumbered (SPEC_FULL.md §4.14).
type Store interface {
	Save(ctx context.Context, records []FeatureRecord) error
	Load(ctx context.Context) ([]FeatureRecord, error)
}
