package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/augment"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/checkpoint"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/clients"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/config"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/device"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/distributed"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/orchestrator"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/pretrained"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/slu"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/storage"
)

var wav2vec2Files = []string{"config.json", "preprocessor_config.json", "pytorch_model.bin"}

func run(ctx context.Context, hparamsFile string, overrides []string) error {
	hp, err := config.LoadHParams(hparamsFile, overrides)
	if err != nil {
		return err
	}
	if distributed.IfMainProcess() {
		closer, err := orchestrator.CreateExperimentDirectory(hp.OutputFolder, hparamsFile, overrides, distributed.Rank())
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	err = distributed.RunOnMain(ctx, hp.OutputFolder, "prepare", func(context.Context) error {
		if hp.SkipPrep {
			return nil
		}
		return dataset.VerifyManifests(hp.DataFolder, map[string]string{
			"train":      hp.CSVTrain,
			"dev_real":   hp.CSVDevReal,
			"dev_synth":  hp.CSVDevSynth,
			"test_real":  hp.CSVTestReal,
			"test_synth": hp.CSVTestSynth,
			"all_real":   hp.CSVAllReal,
		})
	})
	if err != nil {
		return err
	}

	root, err := config.Load()
	if err != nil {
		return fmt.Errorf("services config: %w", err)
	}
	if lvl, err := logrus.ParseLevel(root.Backend.LogLvl); err == nil {
		logrus.SetLevel(lvl)
	}
	encURL, seqURL := root.Services.Encoder.URL, root.Services.Seq2Seq.URL
	if encURL == "" {
		encURL = seqURL
	}

	dev := device.Select(hp.Device)
	device.Report(dev)

	h := clients.NewHTTP(config.DurSeconds(root.Services.Seq2Seq.Timeout))
	enc := clients.NewEncoder(h, encURL, "")
	enc.Freeze = hp.FreezeWav2Vec2
	seq := clients.NewSeq2Seq(h, seqURL, "")
	seq.BeamSize = hp.BeamSize
	tok := clients.NewTokenizer(h, seqURL, "")

	if err := loadPretrained(ctx, h, hp, dev, enc, seq, tok); err != nil {
		return err
	}

	splits, err := dataset.Prepare(ctx, dataset.PrepareOpts{
		DataFolder:    hp.DataFolder,
		Sorting:       hp.Sorting,
		CSVTrain:      hp.CSVTrain,
		CSVDevReal:    hp.CSVDevReal,
		CSVDevSynth:   hp.CSVDevSynth,
		CSVTestReal:   hp.CSVTestReal,
		CSVTestSynth:  hp.CSVTestSynth,
		CSVAllReal:    hp.CSVAllReal,
		TestOnAllReal: hp.TestOnAllReal,
		BOS:           hp.BOSIndex,
		EOS:           hp.EOSIndex,
		Loader: dataset.LoaderOpts{
			BatchSize: hp.DataLoader.BatchSize,
			Shuffle:   hp.DataLoader.Shuffle,
			Seed:      int64(hp.Seed),
			Workers:   hp.DataLoader.NumWorkers,
		},
	}, tok)
	if err != nil {
		return err
	}

	ckpt, closeIndex, err := openCheckpointer(hp)
	if err != nil {
		return err
	}
	defer closeIndex()
	ckpt.AddRecoverable(enc.Module(), clients.NewParams(h, encURL, enc.Module()))
	ckpt.AddRecoverable(seq.Module(), clients.NewParams(h, seqURL, seq.Module()))

	logger, err := orchestrator.NewTrainLogger(hp.TrainLog)
	if err != nil {
		return err
	}

	recipe := slu.New(slu.Config{
		ShowResultsEvery:  hp.ShowResultsEvery,
		LR:                hp.LR,
		LRWav2Vec2:        hp.LRWav2Vec2,
		Annealing:         hp.Annealing,
		AnnealingWav2Vec2: hp.AnnealingWav2Vec2,
		IsMain:            distributed.IfMainProcess,
	}, slu.Modules{
		Encoder:      enc,
		Seq2Seq:      seq,
		Tokenizer:    tok,
		Augment:      newAugmenter(hp),
		NewOptimizer: optimizerFactory(h, hp, encURL, seqURL, enc.Module(), seq.Module()),
	}, logger)

	brain := orchestrator.NewBrain[*slu.Predictions](recipe, clients.NewSession(h, seqURL), ckpt,
		orchestrator.NewEpochCounter(hp.NumberOfEpochs))

	audio := func(p string) ([]float32, error) { return dataset.ReadAudio(p, hp.SampleRate) }
	evalOpts := splits.Loader
	evalOpts.Shuffle = false
	train := dataset.NewLoader(splits.Train, splits.Loader, audio)
	valid := dataset.NewLoader(splits.Valid, evalOpts, audio)
	if err := brain.Fit(ctx, train, valid); err != nil {
		return err
	}

	type testRun struct {
		ds     *dataset.Dataset
		report string
	}
	var tests []testRun
	if hp.TestOnAllReal {
		tests = append(tests, testRun{splits.AllReal, hp.AllRealWERFile})
	}
	tests = append(tests,
		testRun{splits.TestReal, hp.TestRealWERFile},
		testRun{splits.TestSynth, hp.TestSynthWERFile},
	)
	for _, tr := range tests {
		loss, err := brain.Evaluate(ctx, dataset.NewLoader(tr.ds, evalOpts, audio), orchestrator.EvalOptions{
			MinKey:     "SER",
			ReportPath: tr.report,
		})
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", tr.ds.Name, err)
		}
		logrus.WithFields(logrus.Fields{"split": tr.ds.Name, "loss": loss, "report": tr.report}).Info("evaluation done")
	}
	return nil
}

// loadPretrained collects the encoder weights and the pretrainer files and
// builds the backend modules from them.
func loadPretrained(ctx context.Context, h *clients.HTTP, hp *config.HParams, dev string, enc *clients.Encoder, seq *clients.Seq2Seq, tok *clients.Tokenizer) error {
	collectIn := hp.Pretrainer.CollectIn
	if collectIn == "" {
		collectIn = filepath.Join(hp.SaveFolder, "pretrained")
	}
	fetcher := pretrained.NewFetcher(hp.Pretrainer.HubURL, collectIn, 0)

	if hp.Wav2Vec2Hub != "" {
		files, err := fetcher.FetchRepo(ctx, hp.Wav2Vec2Hub, wav2vec2Files...)
		if err != nil {
			return fmt.Errorf("wav2vec2: %w", err)
		}
		if err := h.Load(ctx, enc.URL(), enc.Module(), dev, files); err != nil {
			return err
		}
	}

	collected, err := fetcher.Collect(ctx, hp.Pretrainer.Paths)
	if err != nil {
		return err
	}
	model := map[string]string{}
	for name, p := range collected {
		if strings.HasPrefix(name, "tokenizer") {
			if err := h.Load(ctx, tok.URL(), tok.Module(), dev, map[string]string{name: p}); err != nil {
				return err
			}
			continue
		}
		model[name] = p
	}
	return h.Load(ctx, seq.URL(), seq.Module(), dev, model)
}

func openCheckpointer(hp *config.HParams) (*checkpoint.Checkpointer, func(), error) {
	store, err := storage.Open(hp.Checkpoints, hp.SaveFolder)
	if err != nil {
		return nil, nil, err
	}
	// badger holds an exclusive lock on its directory, so only the main
	// process keeps the index on disk.
	opts := checkpoint.IndexOptions{Dir: filepath.Join(hp.SaveFolder, "index")}
	if !distributed.IfMainProcess() {
		opts = checkpoint.IndexOptions{InMemory: true}
	}
	idx, err := checkpoint.OpenIndex(opts)
	if err != nil {
		return nil, nil, err
	}
	return checkpoint.New(store, idx), func() { idx.Close() }, nil
}

func newAugmenter(hp *config.HParams) *augment.Augmenter {
	a := hp.Augment
	if a == nil {
		return nil
	}
	var ts []augment.Transform
	if len(a.Speeds) > 0 {
		ts = append(ts, augment.SpeedPerturb{SampleRate: hp.SampleRate, Speeds: a.Speeds})
	}
	if a.DropChunks > 0 {
		ts = append(ts, augment.DropChunk{Count: a.DropChunks, Length: int(a.DropChunkLen * float64(hp.SampleRate))})
	}
	if len(ts) == 0 {
		return nil
	}
	return augment.New(int64(hp.Seed), a.ConcatOriginal, ts...)
}

func optimizerFactory(h *clients.HTTP, hp *config.HParams, encURL, seqURL, encModule, seqModule string) slu.OptimizerFactory {
	return func(ctx context.Context, name string, lr float64) (slu.Optimizer, error) {
		if name == slu.EncoderOptimizer {
			return h.NewOptimizer(ctx, encURL, name, hp.Wav2Vec2Optimizer.Class, encModule, lr, hp.Wav2Vec2Optimizer.Args)
		}
		return h.NewOptimizer(ctx, seqURL, name, hp.Optimizer.Class, seqModule, lr, hp.Optimizer.Args)
	}
}
