package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	iceapi "iceflow/pkg/iceflow"
)

func loadTrainRequestFromConfig(path string) (iceapi.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return iceapi.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return iceapi.TrainRequest{}, err
	}

	var req iceapi.TrainRequest
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["epochs"]); ok {
		req.Epochs = v
	}
	if v, ok := asInt(raw["nf_epochs"]); ok {
		req.FlowEpochs = v
	}
	if v, ok := asInt(raw["de_epochs"]); ok {
		req.EnsembleEpochs = v
	}
	if v, ok := asInt(raw["ensemble_size"]); ok {
		req.EnsembleSize = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		req.BatchSize = v
	}
	if v, ok := asInt(raw["sequence_length"]); ok {
		req.SequenceLength = v
	}
	return req, nil
}

func loadOrDefaultTrainRequest(configPath string) (iceapi.TrainRequest, error) {
	if configPath == "" {
		return iceapi.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return iceapi.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// trainFlagValues carries the parsed training flag values so that
// explicitly set flags can override a config file.
type trainFlagValues struct {
	Seed           int64
	Epochs         int
	FlowEpochs     int
	EnsembleEpochs int
	EnsembleSize   int
	BatchSize      int
	SequenceLength int
}

// visitedFlags reports which flags were set on the command line.
func visitedFlags(fs *flag.FlagSet) map[string]bool {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		seen[f.Name] = true
	})
	return seen
}

// applyTrainFlagOverrides lays explicitly set flags over a request
// loaded from a config file. Unset flags leave the config values
// untouched.
func applyTrainFlagOverrides(req *iceapi.TrainRequest, set map[string]bool, vals trainFlagValues) {
	if set["seed"] {
		req.Seed = vals.Seed
	}
	if set["epochs"] {
		req.Epochs = vals.Epochs
	}
	if set["nf-epochs"] {
		req.FlowEpochs = vals.FlowEpochs
	}
	if set["de-epochs"] {
		req.EnsembleEpochs = vals.EnsembleEpochs
	}
	if set["ensemble-size"] {
		req.EnsembleSize = vals.EnsembleSize
	}
	if set["batch-size"] {
		req.BatchSize = vals.BatchSize
	}
	if set["sequence-length"] {
		req.SequenceLength = vals.SequenceLength
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}
