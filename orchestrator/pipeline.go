package orchestrator

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/checkpoint"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
)

// Brain runs fit and evaluate loops for a Recipe.
type Brain[P any] struct {
	recipe  Recipe[P]
	backend Backend
	ckpt    *checkpoint.Checkpointer
	epochs  *EpochCounter

	optimizers []Optimizer
	ready      bool
}

// NewBrain wires a recipe to its backend. ckpt may be nil, in which case
// nothing is saved or recovered.
func NewBrain[P any](recipe Recipe[P], backend Backend, ckpt *checkpoint.Checkpointer, epochs *EpochCounter) *Brain[P] {
	if epochs == nil {
		epochs = NewEpochCounter(1)
	}
	return &Brain[P]{recipe: recipe, backend: backend, ckpt: ckpt, epochs: epochs}
}

func (b *Brain[P]) Epochs() *EpochCounter { return b.epochs }

func (b *Brain[P]) init(ctx context.Context) error {
	if b.ready {
		return nil
	}
	if b.ckpt != nil {
		b.ckpt.AddRecoverable("counter", b.epochs)
	}
	opts, err := b.recipe.InitOptimizers(ctx, b.ckpt)
	if err != nil {
		return fmt.Errorf("init optimizers: %w", err)
	}
	b.optimizers = opts
	b.ready = true
	return nil
}

// Fit trains until the epoch counter is exhausted, resuming from the
// latest checkpoint when one exists. valid may be nil.
func (b *Brain[P]) Fit(ctx context.Context, train, valid *dataset.Loader) error {
	if err := b.init(ctx); err != nil {
		return err
	}
	if b.ckpt != nil {
		if _, err := b.ckpt.RecoverIfPossible(ctx, ""); err != nil {
			return err
		}
	}
	for b.epochs.Next() {
		epoch := b.epochs.Current
		if _, err := b.runStage(ctx, train, StageContext{Stage: Train, Epoch: epoch}); err != nil {
			return err
		}
		if valid == nil {
			continue
		}
		if _, err := b.runStage(ctx, valid, StageContext{Stage: Valid, Epoch: epoch}); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs one test stage on the checkpoint picked by opts.MinKey and
// returns the average loss.
func (b *Brain[P]) Evaluate(ctx context.Context, test *dataset.Loader, opts EvalOptions) (float64, error) {
	if err := b.init(ctx); err != nil {
		return 0, err
	}
	if b.ckpt != nil {
		if _, err := b.ckpt.RecoverIfPossible(ctx, opts.MinKey); err != nil {
			return 0, err
		}
	}
	return b.runStage(ctx, test, StageContext{Stage: Test, Epoch: b.epochs.Current, ReportPath: opts.ReportPath})
}

func (b *Brain[P]) runStage(ctx context.Context, loader *dataset.Loader, sc StageContext) (float64, error) {
	if err := b.backend.SetMode(ctx, sc.Stage == Train); err != nil {
		return 0, fmt.Errorf("%s: set mode: %w", sc.Stage, err)
	}
	if err := b.recipe.OnStageStart(ctx, sc); err != nil {
		return 0, fmt.Errorf("%s: stage start: %w", sc.Stage, err)
	}
	log := logrus.WithFields(logrus.Fields{"stage": sc.Stage, "epoch": sc.Epoch})
	log.WithField("batches", loader.Len()).Info("stage started")

	avg := 0.0
	for batch, err := range loader.Batches(ctx, sc.Epoch) {
		if err != nil {
			return 0, fmt.Errorf("%s: %w", sc.Stage, err)
		}
		sc.Step++
		var loss float64
		if sc.Stage == Train {
			loss, err = b.fitBatch(ctx, batch, sc)
		} else {
			loss, err = b.evaluateBatch(ctx, batch, sc)
		}
		if err != nil {
			return 0, fmt.Errorf("%s step %d: %w", sc.Stage, sc.Step, err)
		}
		avg = updateAverage(avg, loss, sc.Step)
	}

	if err := b.recipe.OnStageEnd(ctx, sc, avg); err != nil {
		return 0, fmt.Errorf("%s: stage end: %w", sc.Stage, err)
	}
	log.WithField("loss", avg).Info("stage finished")
	return avg, nil
}

func (b *Brain[P]) fitBatch(ctx context.Context, batch *dataset.Batch, sc StageContext) (float64, error) {
	defer b.backend.Release(ctx)

	pred, err := b.recipe.ComputeForward(ctx, batch, sc)
	if err != nil {
		return 0, err
	}
	loss, err := b.recipe.ComputeObjectives(ctx, pred, batch, sc)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss.Value) || math.IsInf(loss.Value, 0) {
		logrus.WithField("step", sc.Step).Warn("non-finite loss, skipping update")
		for _, o := range b.optimizers {
			if err := o.ZeroGrad(ctx); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}
	if err := b.backend.Backward(ctx, loss.Ref); err != nil {
		return 0, fmt.Errorf("backward: %w", err)
	}
	for _, o := range b.optimizers {
		if err := o.Step(ctx); err != nil {
			return 0, fmt.Errorf("%s step: %w", o.Name(), err)
		}
	}
	for _, o := range b.optimizers {
		if err := o.ZeroGrad(ctx); err != nil {
			return 0, fmt.Errorf("%s zero_grad: %w", o.Name(), err)
		}
	}
	return loss.Value, nil
}

func (b *Brain[P]) evaluateBatch(ctx context.Context, batch *dataset.Batch, sc StageContext) (float64, error) {
	defer b.backend.Release(ctx)

	pred, err := b.recipe.ComputeForward(ctx, batch, sc)
	if err != nil {
		return 0, err
	}
	loss, err := b.recipe.ComputeObjectives(ctx, pred, batch, sc)
	if err != nil {
		return 0, err
	}
	return loss.Value, nil
}

// updateAverage folds loss into the running mean of step values.
func updateAverage(avg, loss float64, step int) float64 {
	avg -= avg / float64(step)
	avg += loss / float64(step)
	return avg
}
