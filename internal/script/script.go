// Package script parses the newline-delimited TOML command script named
// in SPEC_FULL.md §6: a `[[command]]` array-of-tables, each table one
// world.Command. Nested commands (repeat's inner command, command_list's
// sub-commands) are expressed as nested TOML tables/arrays, which
// github.com/BurntSushi/toml decodes recursively without extra work.
// read_data entries nested inside repeat/command_list are not supported:
// ReadDataSpec is only populated for top-level entries.
package script

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"sensei/internal/engineconfig"
	"sensei/internal/engineerr"
	"sensei/internal/explore"
	"sensei/internal/prune"
	"sensei/internal/regularize"
	"sensei/internal/world"
)

type pruneFields struct {
	ScoreThreshold *float64 `toml:"score_threshold"`
	TopCount       *int     `toml:"top_count"`
	TopFraction    *float64 `toml:"top_fraction"`
}

// setFields mirrors SPEC_FULL.md §6's `set` option groups. Logging is
// decoded here too but never read: cmd/sensei builds its logger from the
// engine configuration file before any script command runs, and
// world.SetOptions carries no logging fields, so a `set` command cannot
// reopen log files mid-run.
type setFields struct {
	Logging        engineconfig.Logging                 `toml:"logging"`
	Regularization engineconfig.Regularization           `toml:"regularization"`
	InertiaFactor  *float64                              `toml:"inertia_factor"`
	StepMultiplier *float64                              `toml:"step_multiplier"`
	AllowUndo      *bool                                 `toml:"allow_undo"`
	Deterministic  *bool                                 `toml:"deterministic"`
	MaxShardSize   *int                                  `toml:"max_shard_size"`
	WorkerCount    *int                                  `toml:"worker_count"`
	SGDSchedule    engineconfig.SGDLearningRateSchedule  `toml:"sgd_learning_rate_schedule"`
}

// entry is one [[command]] table. Only the fields relevant to Kind are
// read by toCommand.
type entry struct {
	Kind string `toml:"kind"`

	Set setFields `toml:"set"`

	TrainFile    string `toml:"train_file"`
	HoldoutFile  string `toml:"holdout_file"`
	RowIDFeature string `toml:"row_id_feature"`

	Strategy string      `toml:"strategy"`
	Prune    pruneFields `toml:"prune"`

	Count int    `toml:"count"`
	Inner *entry `toml:"inner"`

	List []entry `toml:"list"`
}

type document struct {
	Commands []entry `toml:"command"`
}

// ReadDataSpec names the LIBSVM files a read_data entry points at.
// internal/script stops short of reading them, since doing so needs a
// *feature.Map to intern against that only the caller's World owns.
type ReadDataSpec struct {
	TrainFile, HoldoutFile, RowIDFeature string
}

// ParsedCommand is one script entry: a world.Command ready for
// RunCommand, plus ReadData populated when Kind is CmdReadData (the
// caller fills in cmd.TrainRows/HoldoutRows after parsing those files
// and interning them, then calls RunCommand).
type ParsedCommand struct {
	Command  world.Command
	ReadData *ReadDataSpec
}

// Load reads and parses a command script at path.
func Load(path string) ([]ParsedCommand, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Configuration, "script.Load", "opening script file", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a command script from r.
func Decode(r io.Reader) ([]ParsedCommand, error) {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, engineerr.Wrap(engineerr.Configuration, "script.Decode", "decoding TOML", err)
	}

	cmds := make([]ParsedCommand, len(doc.Commands))
	for i, e := range doc.Commands {
		cmd, err := toParsedCommand(e)
		if err != nil {
			return nil, err
		}
		cmds[i] = cmd
	}
	return cmds, nil
}

func toParsedCommand(e entry) (ParsedCommand, error) {
	cmd, err := toCommand(e)
	if err != nil {
		return ParsedCommand{}, err
	}
	pc := ParsedCommand{Command: cmd}
	if world.CommandKind(e.Kind) == world.CmdReadData {
		pc.ReadData = &ReadDataSpec{TrainFile: e.TrainFile, HoldoutFile: e.HoldoutFile, RowIDFeature: e.RowIDFeature}
	}
	return pc, nil
}

func toCommand(e entry) (world.Command, error) {
	kind := world.CommandKind(e.Kind)

	strategy, err := parseStrategy(e.Strategy)
	if err != nil {
		return world.Command{}, err
	}

	cmd := world.Command{
		Kind:     kind,
		Strategy: strategy,
		Count:    e.Count,
	}

	switch kind {
	case world.CmdSet:
		cmd.Set = world.SetOptions{
			Regularization: regularizeSet(e.Set.Regularization),
			InertiaFactor:  e.Set.InertiaFactor,
			StepMultiplier: e.Set.StepMultiplier,
			AllowUndo:      e.Set.AllowUndo,
			Deterministic:  e.Set.Deterministic,
			MaxShardSize:   e.Set.MaxShardSize,
			WorkerCount:    e.Set.WorkerCount,
		}
		if e.Set.SGDSchedule.StartLearningRate != 0 {
			v := e.Set.SGDSchedule.StartLearningRate
			cmd.Set.SGDStartLearningRate = &v
		}
		if e.Set.SGDSchedule.DecaySpeed != 0 {
			v := e.Set.SGDSchedule.DecaySpeed
			cmd.Set.SGDDecaySpeed = &v
		}

	case world.CmdPruneFeatures:
		cmd.Prune = pruneConfig(e.Prune)

	case world.CmdRepeat:
		if e.Inner == nil {
			return world.Command{}, engineerr.New(engineerr.Configuration, "script.toCommand", "repeat requires an inner command")
		}
		inner, err := toCommand(*e.Inner)
		if err != nil {
			return world.Command{}, err
		}
		cmd.Inner = &inner

	case world.CmdCommandList, world.CmdInternal, world.CmdFromFile:
		list := make([]world.Command, len(e.List))
		for i, sub := range e.List {
			subCmd, err := toCommand(sub)
			if err != nil {
				return world.Command{}, err
			}
			list[i] = subCmd
		}
		cmd.List = list
	}

	return cmd, nil
}

func parseStrategy(s string) (explore.Strategy, error) {
	switch strings.ToLower(s) {
	case "", "abs_weight":
		return explore.AbsWeight, nil
	case "abs_weight_times_row_count":
		return explore.AbsWeightTimesRowCount, nil
	case "mutual_information":
		return explore.MutualInformation, nil
	case "phi_coefficient":
		return explore.PhiCoefficient, nil
	default:
		return 0, engineerr.New(engineerr.Configuration, "script.parseStrategy", fmt.Sprintf("unrecognized strategy %q", s))
	}
}

func pruneConfig(f pruneFields) prune.Config {
	var cfg prune.Config
	if f.ScoreThreshold != nil {
		cfg.ScoreThresholdSet = true
		cfg.ScoreThreshold = *f.ScoreThreshold
	}
	if f.TopCount != nil {
		cfg.TopCountSet = true
		cfg.TopCount = *f.TopCount
	}
	if f.TopFraction != nil {
		cfg.TopFractionSet = true
		cfg.TopFraction = *f.TopFraction
	}
	return cfg
}

func regularizeSet(r engineconfig.Regularization) regularize.Set {
	return regularize.Set{
		Base:       regularizeTerm(r.Base),
		DivSqrtN:   regularizeTerm(r.DivSqrtN),
		MulSqrtN:   regularizeTerm(r.MulSqrtN),
		Confidence: regularizeTerm(r.Confidence),
	}
}

func regularizeTerm(t engineconfig.RegularizationTerm) regularize.Term {
	return regularize.Term{L1: t.L1, L2: t.L2, L1AtWeightZero: t.L1AtWeightZero}
}
