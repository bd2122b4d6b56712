// Package slu is the direct speech-to-semantics recipe: a pretrained
// wav2vec2 encoder feeding an attentional seq2seq model, trained with NLL
// and scored with WER, CER and SER.
package slu

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/augment"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/checkpoint"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/config"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/metrics"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/orchestrator"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

type Encoder interface {
	Encode(ctx context.Context, wavs *tensor.Tensor, lens []float32) (tensor.Ref, error)
}

type Seq2Seq interface {
	EncodeTask(ctx context.Context, in tensor.Ref) (tensor.Ref, error)
	Decode(ctx context.Context, tokensBOS [][]int, encoded tensor.Ref, wavLens []float32) (tensor.Ref, error)
	BeamSearch(ctx context.Context, encoded tensor.Ref, wavLens []float32) ([][]int, error)
	NLLLoss(ctx context.Context, logProbs tensor.Ref, targets [][]int, lens []float32) (tensor.Ref, float64, error)
}

type Tokenizer interface {
	DecodeIDs(ctx context.Context, ids [][]int) ([]string, error)
}

// Optimizer is a backend optimiser whose state is checkpointed.
type Optimizer interface {
	orchestrator.Optimizer
	checkpoint.Recoverable
}

// OptimizerFactory builds the optimiser registered under name.
type OptimizerFactory func(ctx context.Context, name string, lr float64) (Optimizer, error)

const (
	EncoderOptimizer = "wav2vec2_opt"
	ModelOptimizer   = "optimizer"
)

// Modules are the backend pieces the recipe drives.
type Modules struct {
	Encoder   Encoder
	Seq2Seq   Seq2Seq
	Tokenizer Tokenizer
	// Augment is optional; when set it is applied to training batches.
	Augment      *augment.Augmenter
	NewOptimizer OptimizerFactory
}

// Config is everything the stage handlers read. It is fixed for the
// lifetime of a Recipe.
type Config struct {
	// ShowResultsEvery is the training step interval at which beam search
	// runs and predictions are printed.
	ShowResultsEvery  int
	LR                float64
	LRWav2Vec2        float64
	Annealing         config.NewBobOpts
	AnnealingWav2Vec2 config.NewBobOpts
	// Out receives prediction/target pairs. Defaults to stdout.
	Out io.Writer
	// IsMain guards report files in multi-process runs.
	IsMain func() bool
}

// StageState accumulates the metrics of one stage.
type StageState struct {
	Stage orchestrator.Stage
	WER   *metrics.ErrorRateStats
	CER   *metrics.ErrorRateStats
}

func newStageState(stage orchestrator.Stage) *StageState {
	st := &StageState{Stage: stage}
	if stage != orchestrator.Train {
		st.WER = metrics.NewWER()
		st.CER = metrics.NewCER()
	}
	return st
}

// Stats finalises the accumulators into loggable values.
func (st *StageState) Stats(loss float64) orchestrator.Stats {
	stats := orchestrator.Stats{{Key: "loss", Value: loss}}
	if st.WER == nil {
		return stats
	}
	wer, cer := st.WER.Summarize(), st.CER.Summarize()
	return append(stats,
		orchestrator.Stat{Key: "CER", Value: cer.ErrorRate},
		orchestrator.Stat{Key: "WER", Value: wer.ErrorRate},
		orchestrator.Stat{Key: "SER", Value: wer.SER},
	)
}

// Predictions carries the forward outputs to ComputeObjectives.
type Predictions struct {
	LogProbs tensor.Ref
	// Hyps is nil when beam search was skipped for this step.
	Hyps [][]int
}

// Recipe implements orchestrator.Recipe for the SLU task.
type Recipe struct {
	cfg    Config
	mods   Modules
	logger *orchestrator.TrainLogger

	ckpt         *checkpoint.Checkpointer
	opt          Optimizer
	encOpt       Optimizer
	annealing    *orchestrator.NewBob
	annealingEnc *orchestrator.NewBob

	state      *StageState
	trainStats orchestrator.Stats
}

var _ orchestrator.Recipe[*Predictions] = (*Recipe)(nil)

func New(cfg Config, mods Modules, logger *orchestrator.TrainLogger) *Recipe {
	if cfg.ShowResultsEvery <= 0 {
		cfg.ShowResultsEvery = 100
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.IsMain == nil {
		cfg.IsMain = func() bool { return true }
	}
	return &Recipe{
		cfg:    cfg,
		mods:   mods,
		logger: logger,
		annealing: orchestrator.NewNewBob(cfg.LR,
			cfg.Annealing.ImprovementThreshold, cfg.Annealing.AnnealingFactor, cfg.Annealing.Patient),
		annealingEnc: orchestrator.NewNewBob(cfg.LRWav2Vec2,
			cfg.AnnealingWav2Vec2.ImprovementThreshold, cfg.AnnealingWav2Vec2.AnnealingFactor, cfg.AnnealingWav2Vec2.Patient),
	}
}

// ShouldDecode reports whether beam search runs for a batch.
func ShouldDecode(stage orchestrator.Stage, step, every int) bool {
	return stage != orchestrator.Train || step%every == 0
}

func (r *Recipe) InitOptimizers(ctx context.Context, ckpt *checkpoint.Checkpointer) ([]orchestrator.Optimizer, error) {
	encOpt, err := r.mods.NewOptimizer(ctx, EncoderOptimizer, r.cfg.LRWav2Vec2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EncoderOptimizer, err)
	}
	opt, err := r.mods.NewOptimizer(ctx, ModelOptimizer, r.cfg.LR)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ModelOptimizer, err)
	}
	r.encOpt, r.opt, r.ckpt = encOpt, opt, ckpt
	if ckpt != nil {
		ckpt.AddRecoverable(EncoderOptimizer, encOpt)
		ckpt.AddRecoverable(ModelOptimizer, opt)
		ckpt.AddRecoverable("lr_annealing", r.annealing)
		ckpt.AddRecoverable("lr_annealing_wav2vec2", r.annealingEnc)
	}
	return []orchestrator.Optimizer{encOpt, opt}, nil
}

func (r *Recipe) OnStageStart(_ context.Context, sc orchestrator.StageContext) error {
	r.state = newStageState(sc.Stage)
	return nil
}

func (r *Recipe) ComputeForward(ctx context.Context, b *dataset.Batch, sc orchestrator.StageContext) (*Predictions, error) {
	wavs, lens := b.Wavs, b.WavLens
	tokensBOS := b.TokensBOS
	if sc.Stage == orchestrator.Train && r.mods.Augment != nil {
		var err error
		if wavs, lens, err = r.mods.Augment.Augment(wavs, lens); err != nil {
			return nil, fmt.Errorf("augment: %w", err)
		}
		tokensBOS = r.mods.Augment.ReplicateLabels(tokensBOS)
	}

	feats, err := r.mods.Encoder.Encode(ctx, wavs, lens)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	encoded, err := r.mods.Seq2Seq.EncodeTask(ctx, feats)
	if err != nil {
		return nil, fmt.Errorf("task encoder: %w", err)
	}
	logProbs, err := r.mods.Seq2Seq.Decode(ctx, tokensBOS, encoded, lens)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	pred := &Predictions{LogProbs: logProbs}
	if ShouldDecode(sc.Stage, sc.Step, r.cfg.ShowResultsEvery) {
		if pred.Hyps, err = r.mods.Seq2Seq.BeamSearch(ctx, encoded, lens); err != nil {
			return nil, fmt.Errorf("beam search: %w", err)
		}
	}
	return pred, nil
}

func (r *Recipe) ComputeObjectives(ctx context.Context, pred *Predictions, b *dataset.Batch, sc orchestrator.StageContext) (orchestrator.Loss, error) {
	targets, lens := b.TokensEOS, b.TokensEOSLens
	if sc.Stage == orchestrator.Train && r.mods.Augment != nil {
		targets = r.mods.Augment.ReplicateLabels(targets)
		lens = r.mods.Augment.ReplicateLens(lens)
	}
	ref, value, err := r.mods.Seq2Seq.NLLLoss(ctx, pred.LogProbs, targets, lens)
	if err != nil {
		return orchestrator.Loss{}, fmt.Errorf("nll: %w", err)
	}
	if pred.Hyps != nil {
		if err := r.report(ctx, pred.Hyps, b, sc.Stage); err != nil {
			return orchestrator.Loss{}, err
		}
	}
	return orchestrator.Loss{Ref: ref, Value: value}, nil
}

// report decodes hypotheses to words, prints them next to their targets
// and feeds the error-rate accumulators outside training.
func (r *Recipe) report(ctx context.Context, hyps [][]int, b *dataset.Batch, stage orchestrator.Stage) error {
	// Augmented copies follow the originals; only the originals are scored.
	if len(hyps) < b.Size() {
		return fmt.Errorf("slu: beam search returned %d hypotheses for %d utterances", len(hyps), b.Size())
	}
	hyps = hyps[:b.Size()]
	texts, err := r.mods.Tokenizer.DecodeIDs(ctx, hyps)
	if err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	if len(texts) != len(hyps) {
		return fmt.Errorf("tokenizer: decoded %d texts for %d hypotheses", len(texts), len(hyps))
	}
	predicted := make([][]string, len(texts))
	targets := make([][]string, len(texts))
	for i, text := range texts {
		predicted[i] = strings.Split(text, " ")
		targets[i] = strings.Split(b.Semantics[i], " ")
		fmt.Fprintln(r.cfg.Out, strings.Join(predicted[i], " "))
		fmt.Fprintln(r.cfg.Out, strings.Join(targets[i], " "))
		fmt.Fprintln(r.cfg.Out)
	}
	if stage == orchestrator.Train {
		return nil
	}
	if err := r.state.WER.Append(b.IDs, predicted, targets); err != nil {
		return err
	}
	return r.state.CER.Append(b.IDs, predicted, targets)
}

func (r *Recipe) OnStageEnd(ctx context.Context, sc orchestrator.StageContext, loss float64) error {
	st := r.state
	if st == nil || st.Stage != sc.Stage {
		return fmt.Errorf("slu: stage %s ended without starting", sc.Stage)
	}
	switch sc.Stage {
	case orchestrator.Train:
		return r.onTrainEnd(st, loss)
	case orchestrator.Valid:
		return r.onValidEnd(ctx, sc, st, loss)
	case orchestrator.Test:
		return r.onTestEnd(sc, st, loss)
	}
	return nil
}

func (r *Recipe) onTrainEnd(st *StageState, loss float64) error {
	r.trainStats = st.Stats(loss)
	return nil
}

func (r *Recipe) onValidEnd(ctx context.Context, sc orchestrator.StageContext, st *StageState, loss float64) error {
	stats := st.Stats(loss)
	ser, _ := stats.Get("SER")

	oldLR, newLR := r.annealing.Step(ser)
	oldEncLR, newEncLR := r.annealingEnc.Step(ser)
	if r.opt != nil {
		if err := r.opt.SetLR(ctx, newLR); err != nil {
			return err
		}
	}
	if r.encOpt != nil {
		if err := r.encOpt.SetLR(ctx, newEncLR); err != nil {
			return err
		}
	}
	if newLR != oldLR || newEncLR != oldEncLR {
		logrus.WithFields(logrus.Fields{"lr": newLR, "wav2vec2_lr": newEncLR}).Info("annealed learning rates")
	}

	if r.logger != nil {
		meta := orchestrator.Stats{
			{Key: "epoch", Value: sc.Epoch},
			{Key: "lr", Value: oldLR},
			{Key: "wave2vec2_lr", Value: oldEncLR},
		}
		if err := r.logger.LogStats(meta, map[string]orchestrator.Stats{"train": r.trainStats, "valid": stats}); err != nil {
			return err
		}
	}
	if r.ckpt == nil {
		return nil
	}
	return r.ckpt.SaveAndKeepOnly(ctx, map[string]float64{"SER": ser}, []string{"SER"})
}

func (r *Recipe) onTestEnd(sc orchestrator.StageContext, st *StageState, loss float64) error {
	stats := st.Stats(loss)
	if r.logger != nil {
		meta := orchestrator.Stats{{Key: "Epoch loaded", Value: sc.Epoch}}
		if err := r.logger.LogStats(meta, map[string]orchestrator.Stats{"test": stats}); err != nil {
			return err
		}
	}
	if sc.ReportPath == "" || !r.cfg.IsMain() {
		return nil
	}
	return writeReport(sc.ReportPath, st.WER)
}

func writeReport(path string, wer *metrics.ErrorRateStats) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := wer.WriteStats(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
