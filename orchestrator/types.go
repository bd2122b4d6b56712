package orchestrator

import (
	"context"
	"fmt"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/checkpoint"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Stage is the phase a batch is processed in.
type Stage int

const (
	Train Stage = iota
	Valid
	Test
)

func (s Stage) String() string {
	switch s {
	case Train:
		return "train"
	case Valid:
		return "valid"
	case Test:
		return "test"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageContext is passed explicitly to every recipe hook.
type StageContext struct {
	Stage Stage
	Epoch int
	// Step counts batches within the current stage, starting at 1.
	Step int
	// ReportPath is where a test stage writes its error-rate report.
	ReportPath string
}

// Loss is a scalar living on the backend plus its value.
type Loss struct {
	Ref   tensor.Ref
	Value float64
}

// Optimizer steps one parameter group on the backend.
type Optimizer interface {
	Name() string
	Step(ctx context.Context) error
	ZeroGrad(ctx context.Context) error
	LR() float64
	SetLR(ctx context.Context, lr float64) error
}

// Backend owns autograd state between steps.
type Backend interface {
	SetMode(ctx context.Context, train bool) error
	Backward(ctx context.Context, loss tensor.Ref) error
	Release(ctx context.Context) error
}

// Recipe supplies the task-specific parts of the training loop. P is the
// recipe's prediction type handed from ComputeForward to
// ComputeObjectives.
type Recipe[P any] interface {
	InitOptimizers(ctx context.Context, ckpt *checkpoint.Checkpointer) ([]Optimizer, error)
	OnStageStart(ctx context.Context, sc StageContext) error
	ComputeForward(ctx context.Context, b *dataset.Batch, sc StageContext) (P, error)
	ComputeObjectives(ctx context.Context, pred P, b *dataset.Batch, sc StageContext) (Loss, error)
	OnStageEnd(ctx context.Context, sc StageContext, loss float64) error
}

// EvalOptions configures one Evaluate call.
type EvalOptions struct {
	// MinKey selects the checkpoint with the lowest value of this metric.
	MinKey     string
	ReportPath string
}
