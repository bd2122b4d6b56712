package dataset

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// PrepareOpts locates the manifests of every split.
type PrepareOpts struct {
	DataFolder    string
	Sorting       string
	CSVTrain      string
	CSVDevReal    string
	CSVDevSynth   string
	CSVTestReal   string
	CSVTestSynth  string
	CSVAllReal    string
	TestOnAllReal bool
	BOS, EOS      int
	Loader        LoaderOpts
}

// Splits holds the five labelled splits and the loader options to use for
// them after the sorting policy was applied.
type Splits struct {
	Train     *Dataset
	Valid     *Dataset
	TestReal  *Dataset
	TestSynth *Dataset
	AllReal   *Dataset
	Loader    LoaderOpts
}

// Prepare loads and tokenises every split. The sorting mode is checked
// before any manifest is read.
func Prepare(ctx context.Context, o PrepareOpts, tok Tokenizer) (*Splits, error) {
	mode, err := ParseSortMode(o.Sorting)
	if err != nil {
		return nil, err
	}
	loader := o.Loader
	if mode.DisablesShuffle() {
		loader.Shuffle = false
	}

	// dev-real is part of all-real, so it cannot double as validation then
	validPath := o.CSVDevReal
	if o.TestOnAllReal {
		validPath = o.CSVDevSynth
	}

	repl := map[string]string{"data_root": o.DataFolder}
	load := func(name, path string, m SortMode) (*Dataset, error) {
		recs, err := LoadCSV(path, repl)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", name, err)
		}
		items, err := tokenize(ctx, tok, SortByDuration(recs, m), o.BOS, o.EOS)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", name, err)
		}
		logrus.WithFields(logrus.Fields{"split": name, "items": len(items), "sorting": m}).Info("loaded split")
		return &Dataset{Name: name, Items: items}, nil
	}

	s := &Splits{Loader: loader}
	if s.Train, err = load("train", o.CSVTrain, mode); err != nil {
		return nil, err
	}
	if s.Valid, err = load("valid", validPath, SortAscending); err != nil {
		return nil, err
	}
	if s.TestReal, err = load("test_real", o.CSVTestReal, SortAscending); err != nil {
		return nil, err
	}
	if s.TestSynth, err = load("test_synth", o.CSVTestSynth, SortAscending); err != nil {
		return nil, err
	}
	if s.AllReal, err = load("all_real", o.CSVAllReal, SortAscending); err != nil {
		return nil, err
	}
	return s, nil
}
