package augment

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

type gain struct{ k float32 }

func (g gain) Apply(_ *rand.Rand, w []float32) ([]float32, error) {
	for i := range w {
		w[i] *= g.k
	}
	return w, nil
}

func TestAugmentKeepsOriginalsFirst(t *testing.T) {
	a := New(1, true, gain{2})
	wavs, lens := tensor.Pad([][]float32{{1, 1, 1, 1}, {3, 3}})
	out, outLens, err := a.Augment(wavs, lens)
	if err != nil {
		t.Fatal(err)
	}
	if out.Dim(0) != 4 || a.Copies() != 2 {
		t.Fatalf("rows = %d copies = %d", out.Dim(0), a.Copies())
	}
	if out.Row(0)[0] != 1 || out.Row(2)[0] != 2 || out.Row(3)[0] != 6 {
		t.Fatalf("rows = %v", out.Data)
	}
	if outLens[1] != 0.5 || outLens[3] != 0.5 {
		t.Fatalf("lens = %v", outLens)
	}
	// originals untouched
	if wavs.Row(0)[0] != 1 {
		t.Fatal("transform modified the input batch")
	}
}

func TestReplicateLabelsMatchesAugment(t *testing.T) {
	a := New(1, true, gain{2}, gain{3})
	labels := [][]int{{0, 5}, {0, 6}}
	got := a.ReplicateLabels(labels)
	want := [][]int{{0, 5}, {0, 6}, {0, 5}, {0, 6}, {0, 5}, {0, 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
	if lens := a.ReplicateLens([]float32{1, 0.5}); len(lens) != 6 || lens[5] != 0.5 {
		t.Fatalf("lens = %v", lens)
	}
}

func TestDropChunkZeroes(t *testing.T) {
	w := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	out, _ := DropChunk{Count: 1, Length: 3}.Apply(rand.New(rand.NewSource(3)), w)
	zeros := 0
	for _, v := range out {
		if v == 0 {
			zeros++
		}
	}
	if zeros < 1 || zeros > 3 {
		t.Fatalf("zeroed %d samples", zeros)
	}
}

func TestSpeedPerturbUnitSpeed(t *testing.T) {
	w := []float32{0.1, 0.2}
	out, err := SpeedPerturb{SampleRate: 16000, Speeds: []int{100}}.Apply(rand.New(rand.NewSource(1)), w)
	if err != nil || len(out) != 2 {
		t.Fatalf("out = %v err = %v", out, err)
	}
}

func TestSpeedPerturbKeepsTail(t *testing.T) {
	w := make([]float32, 1600)
	for i := range w {
		w[i] = 0.25
	}
	sp := SpeedPerturb{SampleRate: 16000, Speeds: []int{90}}
	out, err := sp.Apply(rand.New(rand.NewSource(1)), w)
	if err != nil {
		t.Fatal(err)
	}
	if want := dataset.ResampledLen(len(w), 16000, 16000*100/90); len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}
}
