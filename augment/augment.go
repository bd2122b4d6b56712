// Package augment implements training-time waveform augmentation. Each
// transform produces one extra copy of the batch, so labels have to be
// replicated to match.
package augment

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/dataset"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Transform maps one unpadded waveform to an augmented one.
type Transform interface {
	Apply(rng *rand.Rand, wav []float32) ([]float32, error)
}

type Augmenter struct {
	ConcatOriginal bool
	Transforms     []Transform

	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed int64, concatOriginal bool, transforms ...Transform) *Augmenter {
	return &Augmenter{
		ConcatOriginal: concatOriginal,
		Transforms:     transforms,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Copies is how many times every input row appears in the output.
func (a *Augmenter) Copies() int {
	n := len(a.Transforms)
	if a.ConcatOriginal || n == 0 {
		n++
	}
	return n
}

// Augment returns the augmented batch: the originals first (when kept),
// then one block per transform, each in input order.
func (a *Augmenter) Augment(wavs *tensor.Tensor, lens []float32) (*tensor.Tensor, []float32, error) {
	rows := unpad(wavs, lens)
	if len(a.Transforms) == 0 {
		return wavs, lens, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var out [][]float32
	if a.ConcatOriginal {
		out = append(out, rows...)
	}
	for ti, tr := range a.Transforms {
		for i, r := range rows {
			w, err := tr.Apply(a.rng, append([]float32(nil), r...))
			if err != nil {
				return nil, nil, fmt.Errorf("augment: transform %d row %d: %w", ti, i, err)
			}
			out = append(out, w)
		}
	}
	padded, rel := tensor.Pad(out)
	return padded, rel, nil
}

// ReplicateLabels repeats label rows in the block order Augment uses.
func (a *Augmenter) ReplicateLabels(rows [][]int) [][]int { return replicate(a, rows) }

// ReplicateLens repeats relative lengths like ReplicateLabels.
func (a *Augmenter) ReplicateLens(lens []float32) []float32 { return replicate(a, lens) }

func replicate[T any](a *Augmenter, rows []T) []T {
	n := a.Copies()
	out := make([]T, 0, len(rows)*n)
	for c := 0; c < n; c++ {
		out = append(out, rows...)
	}
	return out
}

func unpad(wavs *tensor.Tensor, lens []float32) [][]float32 {
	width := wavs.Dim(1)
	rows := make([][]float32, wavs.Dim(0))
	for i := range rows {
		n := width
		if i < len(lens) {
			n = int(float32(width)*lens[i] + 0.5)
		}
		rows[i] = wavs.Row(i)[:min(n, width)]
	}
	return rows
}

// SpeedPerturb changes tempo and pitch by resampling. Speeds are percent
// of the original, picked uniformly per waveform.
type SpeedPerturb struct {
	SampleRate int
	Speeds     []int
}

func (s SpeedPerturb) Apply(rng *rand.Rand, wav []float32) ([]float32, error) {
	if len(s.Speeds) == 0 {
		return wav, nil
	}
	speed := s.Speeds[rng.Intn(len(s.Speeds))]
	if speed == 100 {
		return wav, nil
	}
	in := make([]float64, len(wav))
	for i, v := range wav {
		in[i] = float64(v)
	}
	// playing at speed% means fewer samples at the same nominal rate
	target := s.SampleRate * 100 / speed
	res, err := dataset.Resample(in, s.SampleRate, target)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(res))
	for i, v := range res {
		out[i] = float32(v)
	}
	return out, nil
}

// DropChunk zeroes Count random chunks of up to Length samples.
type DropChunk struct {
	Count  int
	Length int
}

func (d DropChunk) Apply(rng *rand.Rand, wav []float32) ([]float32, error) {
	if d.Length <= 0 || len(wav) == 0 {
		return wav, nil
	}
	for c := 0; c < d.Count; c++ {
		n := 1 + rng.Intn(min(d.Length, len(wav)))
		start := rng.Intn(len(wav) - n + 1)
		clear(wav[start : start+n])
	}
	return wav, nil
}
