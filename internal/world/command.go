package world

import (
	"context"
	"fmt"

	"sensei/internal/engineerr"
	"sensei/internal/enginelog"
	"sensei/internal/explore"
	"sensei/internal/model"
	"sensei/internal/prune"
	"sensei/internal/regularize"
	"sensei/internal/shard"
)

// CommandKind names one of the recognized RunCommand variants
// (SPEC_FULL.md §4.12/§6).
type CommandKind string

const (
	CmdSet                   CommandKind = "set"
	CmdReadData              CommandKind = "read_data"
	CmdInitializeBias        CommandKind = "initialize_bias"
	CmdAddNewProductFeatures CommandKind = "add_new_product_features"
	CmdPruneFeatures         CommandKind = "prune_features"
	CmdFitModelWeights       CommandKind = "fit_model_weights"
	CmdRunSGD                CommandKind = "run_sgd"
	CmdSGD                   CommandKind = "sgd"
	CmdEvaluateStats         CommandKind = "evaluate_stats"
	// CmdStoreModel and CmdWriteModel both delegate to World.Store; the
	// distinction between a relational vs. file target is made once, at
	// World construction time, by which model.Store implementation the
	// caller installs (SPEC_FULL.md §4.14's storage_backend option).
	CmdStoreModel  CommandKind = "store_model"
	CmdWriteModel  CommandKind = "write_model"
	CmdGetModel    CommandKind = "get_model"
	CmdRepeat      CommandKind = "repeat"
	CmdInternal    CommandKind = "internal"
	CmdFromFile    CommandKind = "from_file"
	CmdCommandList CommandKind = "command_list"
	CmdScoreRows   CommandKind = "score_rows"
)

// SetOptions carries the option groups recognized by a "set" command
// (SPEC_FULL.md §6). A nil pointer field leaves the current setting
// untouched; a non-zero Regularization replaces the whole current set.
type SetOptions struct {
	Regularization regularize.Set
	InertiaFactor  *float64
	StepMultiplier *float64
	AllowUndo      *bool
	Deterministic  *bool
	MaxShardSize   *int
	WorkerCount    *int

	SGDStartLearningRate *float64
	SGDDecaySpeed        *float64
}

// Command is one unit of RunCommand dispatch.
type Command struct {
	Kind CommandKind

	Set SetOptions

	// ReadData inputs.
	TrainRows, HoldoutRows []shard.Row

	// Exploration/pruning strategy shared by add_new_product_features and
	// prune_features.
	Strategy explore.Strategy
	Prune    prune.Config

	// Repeat runs Inner Count times.
	Inner *Command
	Count int

	// CommandList runs every sub-command in order, stopping at the first
	// error.
	List []Command
}

// Result is RunCommand's return payload; only the fields relevant to Kind
// are populated.
type Result struct {
	IterationLog any // optimizer.IterationLog; boxed since only fit_model_weights sets it
	PruneResult  prune.Result
	ScoredRows   []ScoredRow
	ModelRecords []model.FeatureRecord
}

// ScoredRow is one (row_id, w·x) pair (SPEC_FULL.md §6's score output).
type ScoredRow struct {
	RowID uint32
	WX    float64
}

// RunCommand dispatches cmd against w. It is a thin dispatcher: all actual
// training logic lives in World's other methods and the packages they
// call, matching the teacher's cobra RunE closures that only marshal flags
// into calls on a domain type.
func (w *World) RunCommand(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case CmdSet:
		return Result{}, w.applySet(cmd.Set)

	case CmdReadData:
		for _, r := range cmd.TrainRows {
			w.Train.AppendRow(r)
		}
		w.Train.Flush()
		for _, r := range cmd.HoldoutRows {
			w.Holdout.AppendRow(r)
		}
		w.Holdout.Flush()
		return Result{}, nil

	case CmdInitializeBias:
		return Result{}, w.InitializeBias(ctx)

	case CmdAddNewProductFeatures:
		return Result{}, w.Explore(ctx, cmd.Strategy)

	case CmdPruneFeatures:
		res, err := w.Prune(ctx, cmd.Prune, cmd.Strategy)
		return Result{PruneResult: res}, err

	case CmdFitModelWeights:
		log, err := w.FitBatch(ctx)
		return Result{IterationLog: log}, err

	case CmdRunSGD, CmdSGD:
		return Result{}, w.RunSGD(ctx)

	case CmdEvaluateStats:
		err := w.Train.RecalcStats(ctx, w.Extender, w.Model.Size(), w.WorkerCount, w.Deterministic)
		if err != nil {
			return Result{}, engineerr.Wrap(engineerr.Data, "world.RunCommand", "evaluate_stats", err)
		}
		return Result{}, nil

	case CmdStoreModel, CmdWriteModel:
		if w.Store == nil {
			return Result{}, engineerr.New(engineerr.Configuration, "world.RunCommand", string(cmd.Kind)+" requires a configured model.Store")
		}
		if err := w.Store.Save(ctx, w.ModelRecords()); err != nil {
			return Result{}, engineerr.Wrap(engineerr.Data, "world.RunCommand", string(cmd.Kind), err)
		}
		if w.Logger != nil {
			w.Logger.Log(enginelog.TagModel, "model persisted")
		}
		return Result{}, nil

	case CmdGetModel:
		if w.Store == nil {
			return Result{}, engineerr.New(engineerr.Configuration, "world.RunCommand", "get_model requires a configured model.Store")
		}
		records, err := w.Store.Load(ctx)
		if err != nil {
			return Result{}, engineerr.Wrap(engineerr.Data, "world.RunCommand", "get_model", err)
		}
		if err := w.LoadModelRecords(ctx, records); err != nil {
			return Result{}, err
		}
		return Result{ModelRecords: records}, nil

	case CmdScoreRows:
		return Result{ScoredRows: w.scoreRows(cmd.TrainRows)}, nil

	case CmdRepeat:
		if cmd.Inner == nil {
			return Result{}, engineerr.New(engineerr.Configuration, "world.RunCommand", "repeat requires an inner command")
		}
		var last Result
		for i := 0; i < cmd.Count; i++ {
			res, err := w.RunCommand(ctx, *cmd.Inner)
			if err != nil {
				return res, err
			}
			last = res
		}
		return last, nil

	case CmdCommandList, CmdInternal, CmdFromFile:
		var last Result
		for _, sub := range cmd.List {
			res, err := w.RunCommand(ctx, sub)
			if err != nil {
				return res, err
			}
			last = res
		}
		return last, nil

	default:
		return Result{}, engineerr.New(engineerr.Configuration, "world.RunCommand", fmt.Sprintf("unrecognized command kind %q", cmd.Kind))
	}
}

func (w *World) applySet(opts SetOptions) error {
	if opts.Regularization != (regularize.Set{}) {
		w.Regularization = opts.Regularization
	}
	if opts.InertiaFactor != nil {
		if *opts.InertiaFactor < 0 {
			return engineerr.New(engineerr.Configuration, "world.applySet", "inertia_factor must be >= 0")
		}
		w.GradBoost.Inertia = *opts.InertiaFactor
	}
	if opts.StepMultiplier != nil {
		if *opts.StepMultiplier < 1 {
			return engineerr.New(engineerr.Configuration, "world.applySet", "step_multiplier must be >= 1")
		}
		w.GradBoost.StepMultiplier = *opts.StepMultiplier
	}
	if opts.AllowUndo != nil {
		w.GradBoost.AllowUndo = *opts.AllowUndo
	}
	if opts.Deterministic != nil {
		w.Deterministic = *opts.Deterministic
		w.GradBoost.Deterministic = *opts.Deterministic
		w.SGD.Deterministic = *opts.Deterministic
	}
	if opts.MaxShardSize != nil {
		w.Train.MaxShardSize = *opts.MaxShardSize
		w.Holdout.MaxShardSize = *opts.MaxShardSize
	}
	if opts.WorkerCount != nil {
		w.WorkerCount = *opts.WorkerCount
		w.GradBoost.Workers = *opts.WorkerCount
		w.SGD.Workers = *opts.WorkerCount
	}
	if opts.SGDStartLearningRate != nil {
		w.SGD.StartLearningRate = *opts.SGDStartLearningRate
	}
	if opts.SGDDecaySpeed != nil {
		w.SGD.DecaySpeed = *opts.SGDDecaySpeed
	}
	return nil
}

func (w *World) scoreRows(rows []shard.Row) []ScoredRow {
	out := make([]ScoredRow, len(rows))
	for i, r := range rows {
		extended := w.Extender.Extend(r.Js)
		var dot float64
		for _, j := range extended {
			if int(j) < w.Model.Size() {
				dot += w.Model.W[j]
			}
		}
		out[i] = ScoredRow{RowID: r.RowID, WX: dot}
	}
	return out
}
