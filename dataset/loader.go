package dataset

import (
	"context"
	"fmt"
	"iter"
	"math/rand"
	"sync"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Item is a record with its text pipeline applied.
type Item struct {
	Record
	Tokens Tokens
}

// Dataset is one named split.
type Dataset struct {
	Name  string
	Items []Item
}

func (d *Dataset) Len() int { return len(d.Items) }

// Batch is a padded group of items. Length slices are relative to the
// padded size.
type Batch struct {
	IDs           []string
	Wavs          *tensor.Tensor
	WavLens       []float32
	TokensBOS     [][]int
	TokensBOSLens []float32
	TokensEOS     [][]int
	TokensEOSLens []float32
	Tokens        [][]int
	TokensLens    []float32
	Semantics     []string
}

func (b *Batch) Size() int { return len(b.IDs) }

type LoaderOpts struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	// Workers bounds concurrent audio decoding per batch.
	Workers int
}

// AudioFunc loads the waveform for a record's wav path.
type AudioFunc func(path string) ([]float32, error)

type Loader struct {
	ds    *Dataset
	opts  LoaderOpts
	audio AudioFunc
}

func NewLoader(ds *Dataset, opts LoaderOpts, audio AudioFunc) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Loader{ds: ds, opts: opts, audio: audio}
}

func (l *Loader) Dataset() *Dataset { return l.ds }

// Len is the number of batches per pass.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Batches yields one pass over the dataset. With Shuffle the order is a
// permutation seeded by Seed and epoch.
func (l *Loader) Batches(ctx context.Context, epoch int) iter.Seq2[*Batch, error] {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		rng := rand.New(rand.NewSource(l.opts.Seed + int64(epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return func(yield func(*Batch, error) bool) {
		for start := 0; start < len(order); start += l.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			end := min(start+l.opts.BatchSize, len(order))
			items := make([]Item, 0, end-start)
			for _, i := range order[start:end] {
				items = append(items, l.ds.Items[i])
			}
			b, err := l.collate(items)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

func (l *Loader) collate(items []Item) (*Batch, error) {
	wavs := make([][]float32, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, l.opts.Workers)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			wavs[i], errs[i] = l.audio(items[i].Wav)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("batch item %s: %w", items[i].ID, err)
		}
	}

	b := &Batch{}
	var bos, eos, ids [][]int
	for _, it := range items {
		b.IDs = append(b.IDs, it.ID)
		b.Semantics = append(b.Semantics, it.Semantics)
		bos = append(bos, it.Tokens.BOS)
		eos = append(eos, it.Tokens.EOS)
		ids = append(ids, it.Tokens.IDs)
	}
	b.Wavs, b.WavLens = tensor.Pad(wavs)
	b.TokensBOS, b.TokensBOSLens = tensor.PadInts(bos, 0)
	b.TokensEOS, b.TokensEOSLens = tensor.PadInts(eos, 0)
	b.Tokens, b.TokensLens = tensor.PadInts(ids, 0)
	return b, nil
}
