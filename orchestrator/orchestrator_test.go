package orchestrator

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/checkpoint"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/storage"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

type fakeOpt struct {
	name        string
	lr          float64
	steps, zero int
	calls       *[]string
}

func (o *fakeOpt) Name() string { return o.name }
func (o *fakeOpt) Step(context.Context) error {
	o.steps++
	*o.calls = append(*o.calls, o.name+".step")
	return nil
}
func (o *fakeOpt) ZeroGrad(context.Context) error {
	o.zero++
	*o.calls = append(*o.calls, o.name+".zero")
	return nil
}
func (o *fakeOpt) LR() float64                               { return o.lr }
func (o *fakeOpt) SetLR(_ context.Context, lr float64) error { o.lr = lr; return nil }

type fakeBackend struct {
	modes     []bool
	backwards int
	releases  int
	calls     *[]string
}

func (b *fakeBackend) SetMode(_ context.Context, train bool) error {
	b.modes = append(b.modes, train)
	return nil
}
func (b *fakeBackend) Backward(context.Context, tensor.Ref) error {
	b.backwards++
	*b.calls = append(*b.calls, "backward")
	return nil
}
func (b *fakeBackend) Release(context.Context) error { b.releases++; return nil }

type fakeRecipe struct {
	opts     []Optimizer
	losses   []float64
	ends     []StageContext
	endLoss  []float64
	steps    []int
	ckpt     *checkpoint.Checkpointer
	failStep int
}

func (r *fakeRecipe) InitOptimizers(_ context.Context, ckpt *checkpoint.Checkpointer) ([]Optimizer, error) {
	r.ckpt = ckpt
	return r.opts, nil
}
func (r *fakeRecipe) OnStageStart(context.Context, StageContext) error { return nil }
func (r *fakeRecipe) ComputeForward(_ context.Context, b *dataset.Batch, sc StageContext) (int, error) {
	r.steps = append(r.steps, sc.Step)
	if r.failStep > 0 && sc.Step == r.failStep {
		return 0, errors.New("boom")
	}
	return b.Size(), nil
}
func (r *fakeRecipe) ComputeObjectives(_ context.Context, n int, _ *dataset.Batch, sc StageContext) (Loss, error) {
	v := r.losses[(sc.Step-1)%len(r.losses)]
	return Loss{Ref: tensor.Ref{ID: "loss"}, Value: v}, nil
}
func (r *fakeRecipe) OnStageEnd(ctx context.Context, sc StageContext, loss float64) error {
	r.ends = append(r.ends, sc)
	r.endLoss = append(r.endLoss, loss)
	if sc.Stage == Valid && r.ckpt != nil {
		return r.ckpt.SaveAndKeepOnly(ctx, map[string]float64{"SER": float64(10 - sc.Epoch)}, []string{"SER"})
	}
	return nil
}

func testLoader(n, batch int) *dataset.Loader {
	ds := &dataset.Dataset{Name: "t"}
	for i := 0; i < n; i++ {
		ds.Items = append(ds.Items, dataset.Item{
			Record: dataset.Record{ID: string(rune('a' + i)), Wav: "x.wav"},
			Tokens: dataset.MakeTokens("s", []int{5, 6}, 0, 0),
		})
	}
	return dataset.NewLoader(ds, dataset.LoaderOpts{BatchSize: batch}, func(string) ([]float32, error) {
		return []float32{0.1, 0.2}, nil
	})
}

func TestFitStepsEveryOptimizer(t *testing.T) {
	var calls []string
	o1 := &fakeOpt{name: "wav2vec2_opt", calls: &calls}
	o2 := &fakeOpt{name: "optimizer", calls: &calls}
	backend := &fakeBackend{calls: &calls}
	rec := &fakeRecipe{opts: []Optimizer{o1, o2}, losses: []float64{2, 4}}

	brain := NewBrain[int](rec, backend, nil, NewEpochCounter(2))
	if err := brain.Fit(context.Background(), testLoader(4, 2), testLoader(2, 1)); err != nil {
		t.Fatal(err)
	}
	if o1.steps != 4 || o2.steps != 4 || o1.zero != 4 || o2.zero != 4 {
		t.Fatalf("steps o1=%d/%d o2=%d/%d", o1.steps, o1.zero, o2.steps, o2.zero)
	}
	want := []string{"backward", "wav2vec2_opt.step", "optimizer.step", "wav2vec2_opt.zero", "optimizer.zero"}
	for i, c := range want {
		if calls[i] != c {
			t.Fatalf("call %d = %s, want %s (%v)", i, calls[i], c, calls)
		}
	}
	if backend.backwards != 4 {
		t.Fatalf("backwards = %d", backend.backwards)
	}
	// 2 train batches + 2 valid batches per epoch.
	if backend.releases != 8 {
		t.Fatalf("releases = %d", backend.releases)
	}
	if len(rec.ends) != 4 || rec.ends[0].Stage != Train || rec.ends[1].Stage != Valid || rec.ends[3].Epoch != 2 {
		t.Fatalf("stage ends = %+v", rec.ends)
	}
	if rec.endLoss[0] != 3 {
		t.Fatalf("avg train loss = %v", rec.endLoss[0])
	}
	if got := []bool{true, false, true, false}; len(backend.modes) != 4 || backend.modes[0] != got[0] || backend.modes[1] != got[1] {
		t.Fatalf("modes = %v", backend.modes)
	}
}

func TestFitStopsOnForwardError(t *testing.T) {
	var calls []string
	rec := &fakeRecipe{losses: []float64{1}, failStep: 2}
	brain := NewBrain[int](rec, &fakeBackend{calls: &calls}, nil, NewEpochCounter(1))
	err := brain.Fit(context.Background(), testLoader(3, 1), nil)
	if err == nil || !strings.Contains(err.Error(), "train step 2") {
		t.Fatalf("err = %v", err)
	}
}

func TestFitResumesFromCheckpoint(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := checkpoint.OpenIndex(checkpoint.IndexOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ckpt := checkpoint.New(store, idx)
	ckpt.IsMain = func() bool { return true }

	var calls []string
	rec := &fakeRecipe{losses: []float64{1}}
	brain := NewBrain[int](rec, &fakeBackend{calls: &calls}, ckpt, NewEpochCounter(2))
	if err := brain.Fit(context.Background(), testLoader(1, 1), testLoader(1, 1)); err != nil {
		t.Fatal(err)
	}

	rec2 := &fakeRecipe{losses: []float64{1}}
	counter := NewEpochCounter(3)
	ckpt2 := checkpoint.New(store, idx)
	ckpt2.IsMain = func() bool { return true }
	brain2 := NewBrain[int](rec2, &fakeBackend{calls: &calls}, ckpt2, counter)
	if err := brain2.Fit(context.Background(), testLoader(1, 1), testLoader(1, 1)); err != nil {
		t.Fatal(err)
	}
	if len(rec2.ends) != 2 || rec2.ends[0].Epoch != 3 {
		t.Fatalf("resumed stage ends = %+v", rec2.ends)
	}

	if _, err := brain2.Evaluate(context.Background(), testLoader(2, 1), EvalOptions{MinKey: "SER", ReportPath: "r.txt"}); err != nil {
		t.Fatal(err)
	}
	last := rec2.ends[len(rec2.ends)-1]
	if last.Stage != Test || last.ReportPath != "r.txt" || last.Epoch != 3 {
		t.Fatalf("test stage = %+v", last)
	}
}

func TestNonFiniteLossSkipsUpdate(t *testing.T) {
	var calls []string
	o := &fakeOpt{name: "optimizer", calls: &calls}
	backend := &fakeBackend{calls: &calls}
	rec := &fakeRecipe{opts: []Optimizer{o}, losses: []float64{math.NaN()}}
	brain := NewBrain[int](rec, backend, nil, NewEpochCounter(1))
	if err := brain.Fit(context.Background(), testLoader(2, 1), nil); err != nil {
		t.Fatal(err)
	}
	if o.steps != 0 || backend.backwards != 0 || o.zero != 2 {
		t.Fatalf("steps=%d backwards=%d zero=%d", o.steps, backend.backwards, o.zero)
	}
}

func TestNewBob(t *testing.T) {
	n := NewNewBob(1.0, 0.0025, 0.8, 0)
	if _, v := n.Step(50); v != 1.0 {
		t.Fatalf("first step annealed: %v", v)
	}
	if _, v := n.Step(40); v != 1.0 {
		t.Fatalf("improving step annealed: %v", v)
	}
	old, v := n.Step(40)
	if old != 1.0 || math.Abs(v-0.8) > 1e-12 {
		t.Fatalf("stalled step = %v -> %v", old, v)
	}

	data, err := n.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m := NewNewBob(1.0, 0.0025, 0.8, 0)
	if err := m.Load(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	if _, v := m.Step(40); math.Abs(v-0.64) > 1e-12 {
		t.Fatalf("restored scheduler = %v", v)
	}
}

func TestNewBobPatience(t *testing.T) {
	n := NewNewBob(1.0, 0.01, 0.5, 1)
	n.Step(10)
	if _, v := n.Step(10); v != 1.0 {
		t.Fatalf("patience ignored: %v", v)
	}
	if _, v := n.Step(10); v != 0.5 {
		t.Fatalf("no anneal after patience: %v", v)
	}
}

func TestTrainLoggerFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_log.txt")
	l, err := NewTrainLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	err = l.LogStats(
		Stats{{"epoch", 1}, {"lr", 0.0003}},
		map[string]Stats{
			"train": {{"loss", 1.234}},
			"valid": {{"loss", 0.5}, {"SER", 25.0}},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "epoch: 1, lr: 3.00e-04 - train loss: 1.23 - valid loss: 5.00e-01, valid SER: 25.00\n"
	if string(b) != want {
		t.Fatalf("log line = %q", b)
	}
}

func TestCreateExperimentDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "train.yaml")
	if err := os.WriteFile(src, []byte("seed: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "exp")
	c, err := CreateExperimentDirectory(dir, src, []string{"--seed=2"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	for _, name := range []string{"hyperparams.yaml", "experiment.yaml", "log.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	rec, _ := os.ReadFile(filepath.Join(dir, "experiment.yaml"))
	if !strings.Contains(string(rec), "--seed=2") {
		t.Fatalf("overrides not recorded: %s", rec)
	}
}
