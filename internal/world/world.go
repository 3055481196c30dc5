// Package world implements the engine's aggregate owner and structural
// mutation choke point (SPEC_FULL.md §4.11): the single orchestrator type
// that every training command runs through, grounded on the teacher's
// Applier type (internal/apply), which likewise owns every piece of state a
// migration touches and funnels all of it through one Apply call.
package world

import (
	"context"
	"sort"
	"time"

	"sensei/internal/dependees"
	"sensei/internal/engineerr"
	"sensei/internal/enginelog"
	"sensei/internal/explore"
	"sensei/internal/feature"
	"sensei/internal/metrics"
	"sensei/internal/model"
	"sensei/internal/optimizer"
	"sensei/internal/prune"
	"sensei/internal/regularize"
	"sensei/internal/shard"
)

// World owns a single instance of every component named in SPEC_FULL.md §3
// and §4.11. Cross-component references elsewhere in the engine are
// non-owning; all structural mutation (feature add/remove) funnels through
// AddFeatures/RemoveAndRenumber.
type World struct {
	Features  *feature.Map
	Products  *feature.ProductMap
	Dependees *dependees.Graph
	Extender  *dependees.RowExtender

	Train   *shard.Set
	Holdout *shard.Set

	Model          *model.Model
	Regularization regularize.Set

	GradBoost *optimizer.GradBoost
	SGD       *optimizer.SGD
	Explorer  *explore.Explorer

	Logger  *enginelog.Logger
	Store   model.Store      // optional; nil unless a storage backend was configured
	Metrics *metrics.Registry // optional; nil unless metrics_enabled, every method is then a no-op

	WorkerCount   int
	Deterministic bool

	// lastExplorationCreationTime is the createdAt stamp used by the most
	// recent AddFeatures call, consulted by SGD's NewFeatures mode.
	lastExplorationCreationTime time.Time
}

// New constructs an empty World over one shared feature universe
// (feature.NewUniverse), ready to read data and fit.
func New(maxShardSize, workerCount int, deterministic bool) *World {
	features, products := feature.NewUniverse()
	graph := dependees.NewGraph()
	w := &World{
		Features:       features,
		Products:       products,
		Dependees:      graph,
		Extender:       dependees.NewRowExtender(graph),
		Train:          shard.NewSet(maxShardSize),
		Holdout:        shard.NewSet(maxShardSize),
		Model:          model.New(),
		Regularization: regularize.DefaultSet(),
		GradBoost:      optimizer.NewGradBoost(workerCount, deterministic),
		SGD:            optimizer.NewSGD(workerCount, deterministic, 0.1, 1.0),
		Explorer:       explore.New(explore.Config{MaxProductSize: 4, MaximumFeaturesAdded: 1, ExpectedXjboolsAdded: 1}),
		WorkerCount:    workerCount,
		Deterministic:  deterministic,
	}
	return w
}

// AddFeatures runs the fixed-order sequence required after interning new
// J's (SPEC_FULL.md §4.11): product map sync, dependees row-count bump,
// Model resize (which also sizes the optimizer state the Model carries),
// stats recalculation. firstNewJ may be feature.InvalidJ if nothing was
// added (newSize unchanged).
func (w *World) AddFeatures(ctx context.Context, firstNewJ feature.J, newSize int) error {
	w.Products.SyncJToKey()
	w.Dependees.SetRowCount(newSize)

	createdAt := time.Now()
	w.lastExplorationCreationTime = createdAt
	w.Model.Resize(newSize, createdAt)

	if err := w.Train.RecalcStats(ctx, w.Extender, newSize, w.WorkerCount, w.Deterministic); err != nil {
		return engineerr.Wrap(engineerr.Data, "world.AddFeatures", "recalculating train stats", err)
	}
	if w.Holdout.RowCount() > 0 {
		if err := w.Holdout.RecalcStats(ctx, w.Extender, newSize, w.WorkerCount, w.Deterministic); err != nil {
			return engineerr.Wrap(engineerr.Data, "world.AddFeatures", "recalculating holdout stats", err)
		}
	}
	_ = firstNewJ
	return nil
}

// RemoveAndRenumber runs the fixed-order sequence required during pruning
// (SPEC_FULL.md §4.11): Model weights, optimizer state (carried inside
// Model, so no separate step), feature map, product map, shard contents,
// dependees rows and row-indices, stats.
func (w *World) RemoveAndRenumber(ctx context.Context, r feature.Renumbering) error {
	w.Model.RemoveAndRenumber(r)
	w.Features.Renumber(r)
	w.Products.Renumber(r)
	w.Train.RemoveAndRenumberJs(r)
	if w.Holdout.RowCount() > 0 {
		w.Holdout.RemoveAndRenumberJs(r)
	}
	w.Dependees.Renumber(r)

	size := int(r.NextJ)
	if err := w.Train.RecalcStats(ctx, w.Extender, size, w.WorkerCount, w.Deterministic); err != nil {
		return engineerr.Wrap(engineerr.Data, "world.RemoveAndRenumber", "recalculating train stats", err)
	}
	if w.Holdout.RowCount() > 0 {
		if err := w.Holdout.RecalcStats(ctx, w.Extender, size, w.WorkerCount, w.Deterministic); err != nil {
			return engineerr.Wrap(engineerr.Data, "world.RemoveAndRenumber", "recalculating holdout stats", err)
		}
	}
	return nil
}

// ScoreJ computes a J's exploration/pruning score under strategy, using the
// current model weight and stats (SPEC_FULL.md §4.9).
func (w *World) ScoreJ(j feature.J, strategy explore.Strategy) float64 {
	totalPos, totalNeg := w.Train.Stats.PositiveRows, w.Train.Stats.NegativeRows
	switch strategy {
	case explore.AbsWeight:
		return absf(w.Model.W[j])
	case explore.AbsWeightTimesRowCount:
		rows := float64(w.Train.Stats.Positive[j] + w.Train.Stats.Negative[j])
		return absf(w.Model.W[j]) * rows
	case explore.MutualInformation:
		return w.Train.Stats.MutualInformation(j, totalPos, totalNeg)
	case explore.PhiCoefficient:
		return absf(w.Train.Stats.PhiCoefficient(j, totalPos, totalNeg))
	default:
		return absf(w.Model.W[j])
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// factorsOf returns the JProduct for j: its stored product if j was
// interned into Products, or the atomic singleton {j} otherwise.
func (w *World) factorsOf(j feature.J) feature.JProduct {
	if p, ok := w.Products.JToKey(j); ok {
		return p
	}
	return feature.JProduct{j}
}

// Explore runs one exploration round over every currently-scored J (every
// J present in stats), then applies AddFeatures.
func (w *World) Explore(ctx context.Context, strategy explore.Strategy) error {
	size := w.Model.Size()
	existing := make([]feature.J, 0, size)
	score := make(map[feature.J]float64, size)
	for j := 0; j < size; j++ {
		jj := feature.J(j)
		existing = append(existing, jj)
		score[jj] = w.ScoreJ(jj, strategy)
	}

	candidates := w.Explorer.Select(existing, score, w.Products, w.factorsOf)
	firstNewJ, newSize, err := explore.Intern(candidates, w.Products, w.Dependees)
	if err != nil {
		return engineerr.Wrap(engineerr.Overflow, "world.Explore", "interning new product features", err)
	}
	w.Metrics.AddFeaturesAdded(len(candidates))
	return w.AddFeatures(ctx, firstNewJ, newSize)
}

// Prune runs one pruning pass per cfg, then applies RemoveAndRenumber.
func (w *World) Prune(ctx context.Context, cfg prune.Config, strategy explore.Strategy) (prune.Result, error) {
	size := w.Model.Size()
	score := make(map[feature.J]float64, size)
	for j := 0; j < size; j++ {
		score[feature.J(j)] = w.ScoreJ(feature.J(j), strategy)
	}

	nonzeroCount := func(j feature.J) int64 {
		return w.Train.Stats.Positive[j] + w.Train.Stats.Negative[j]
	}

	res, err := prune.Select(cfg, score, w.Dependees, nonzeroCount, size)
	if err != nil {
		return prune.Result{}, engineerr.Wrap(engineerr.Configuration, "world.Prune", "selecting J's to prune", err)
	}
	if err := w.RemoveAndRenumber(ctx, res.Renumbering); err != nil {
		return prune.Result{}, err
	}
	w.Metrics.AddFeaturesPruned(len(res.Removed))
	return res, nil
}

// FitBatch runs one GradBoost iteration.
func (w *World) FitBatch(ctx context.Context) (optimizer.IterationLog, error) {
	log, err := w.GradBoost.RunIteration(ctx, w.Model, w.Regularization, w.Train.Stats, w.Train, w.Holdout, w.Extender)
	if err != nil {
		return optimizer.IterationLog{}, engineerr.Wrap(engineerr.Convergence, "world.FitBatch", "running gradboost iteration", err)
	}
	w.Metrics.ObserveIteration(log)
	if w.Logger != nil {
		w.Logger.Log(enginelog.TagIteration, "gradboost iteration complete")
	}
	return log, nil
}

// RunSGD runs one asynchronous SGD pass.
func (w *World) RunSGD(ctx context.Context) error {
	if err := w.SGD.RunPass(ctx, w.Model, w.Regularization, w.Train, w.Extender, w.lastExplorationCreationTime); err != nil {
		return engineerr.Wrap(engineerr.Configuration, "world.RunSGD", "running sgd pass", err)
	}
	w.Metrics.ObserveSGDLearningRate(w.SGD.CurrentLearningRate())
	if w.Logger != nil {
		w.Logger.Log(enginelog.TagSGD, "sgd pass complete")
	}
	return nil
}

// InitializeBias interns the empty JProduct (the bias feature) if not
// already present and runs AddFeatures so every component is sized for it.
func (w *World) InitializeBias(ctx context.Context) error {
	j, err := w.Products.Intern(feature.JProduct{})
	if err != nil {
		return engineerr.Wrap(engineerr.Overflow, "world.InitializeBias", "interning bias feature", err)
	}
	return w.AddFeatures(ctx, j, int(w.Products.Size()))
}

// ModelRecords snapshots the current Model into a feature-name-keyed record
// list suitable for Store.Save, omitting zero weights (SPEC_FULL.md §6).
func (w *World) ModelRecords() []model.FeatureRecord {
	var records []model.FeatureRecord
	for j := 0; j < w.Model.Size(); j++ {
		jj := feature.J(j)
		wj := w.Model.W[jj]
		if wj == 0 {
			continue
		}
		names := w.featureNamesOf(jj)
		if names == nil {
			continue
		}
		records = append(records, model.FeatureRecord{Features: names, Weight: wj})
	}
	return records
}

// featureNamesOf resolves j's JProduct into its ordered atomic feature
// names, or nil if any factor's name cannot be resolved (FeatureMap must be
// synced first).
func (w *World) featureNamesOf(j feature.J) []string {
	p := w.factorsOf(j)
	names := make([]string, len(p))
	for i, atomJ := range p {
		name, ok := w.Features.JToKey(atomJ)
		if !ok {
			return nil
		}
		names[i] = name
	}
	return names
}

// LoadModelRecords interns every record's features and sets the
// corresponding weight, applying AddFeatures after each record so the
// Model is sized before that record's weight is set.
func (w *World) LoadModelRecords(ctx context.Context, records []model.FeatureRecord) error {
	var firstNewJ feature.J = feature.InvalidJ
	for _, rec := range records {
		atoms := make(feature.JProduct, len(rec.Features))
		for i, name := range rec.Features {
			aj, err := w.Features.Intern(name)
			if err != nil {
				return engineerr.Wrap(engineerr.Overflow, "world.LoadModelRecords", "interning atomic feature", err)
			}
			atoms[i] = aj
		}
		atoms = sortedUnique(atoms)

		var j feature.J
		var err error
		if len(atoms) == 1 {
			j = atoms[0]
		} else {
			j, err = w.Products.Intern(atoms)
			if err != nil {
				return engineerr.Wrap(engineerr.Overflow, "world.LoadModelRecords", "interning product feature", err)
			}
			if firstNewJ == feature.InvalidJ {
				firstNewJ = j
			}
			for _, atomJ := range atoms {
				if atomJ < j {
					w.Dependees.AddEdge(atomJ, j, len(atoms))
				}
			}
		}

		// Features and Products share one counter (feature.NewUniverse), so
		// both report the same total J-space size here.
		if err := w.AddFeatures(ctx, firstNewJ, w.Products.Size()); err != nil {
			return err
		}
		w.Model.SetWeight(j, rec.Weight)
	}
	return nil
}

func sortedUnique(p feature.JProduct) feature.JProduct {
	sorted := append(feature.JProduct(nil), p...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i] < sorted[k] })
	out := sorted[:0]
	for i, j := range sorted {
		if i == 0 || j != sorted[i-1] {
			out = append(out, j)
		}
	}
	return out
}
