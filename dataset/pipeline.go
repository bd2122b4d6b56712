package dataset

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Tokenizer maps label strings to token ids.
type Tokenizer interface {
	EncodeAsIDs(ctx context.Context, texts []string) ([][]int, error)
}

// Tokens are the derived token sequences of one label string.
type Tokens struct {
	Semantics string
	List      []int
	BOS       []int // [bos] + ids, decoder input
	EOS       []int // ids + [eos], decoder target
	IDs       []int
}

// MakeTokens derives the token variants from ids. Every variant gets its
// own backing array so that callers may modify them independently.
func MakeTokens(semantics string, ids []int, bos, eos int) Tokens {
	list := append([]int(nil), ids...)
	withBOS := make([]int, 0, len(ids)+1)
	withBOS = append(append(withBOS, bos), ids...)
	withEOS := make([]int, 0, len(ids)+1)
	withEOS = append(append(withEOS, ids...), eos)
	return Tokens{
		Semantics: semantics,
		List:      list,
		BOS:       withBOS,
		EOS:       withEOS,
		IDs:       append([]int(nil), ids...),
	}
}

const tokenizeChunk = 256

// tokenize runs the text pipeline over recs in chunks.
func tokenize(ctx context.Context, tok Tokenizer, recs []Record, bos, eos int) ([]Item, error) {
	items := make([]Item, len(recs))
	for start := 0; start < len(recs); start += tokenizeChunk {
		end := min(start+tokenizeChunk, len(recs))
		texts := make([]string, 0, end-start)
		for _, r := range recs[start:end] {
			texts = append(texts, r.Semantics)
		}
		ids, err := tok.EncodeAsIDs(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("tokenize: %w", err)
		}
		if len(ids) != len(texts) {
			return nil, fmt.Errorf("tokenize: got %d id lists for %d texts", len(ids), len(texts))
		}
		for i, r := range recs[start:end] {
			items[start+i] = Item{Record: r, Tokens: MakeTokens(r.Semantics, ids[i], bos, eos)}
		}
	}
	return items, nil
}

// ReadAudio decodes a WAV file into mono float32 samples in [-1, 1],
// resampled to sampleRate when it differs from the file's rate.
func ReadAudio(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("read audio %s: not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %w", path, err)
	}
	channels := max(buf.Format.NumChannels, 1)
	scale := math.Exp2(float64(d.BitDepth) - 1)
	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var s float64
		for c := 0; c < channels; c++ {
			s += float64(buf.Data[i*channels+c])
		}
		mono[i] = s / float64(channels) / scale
	}

	if sampleRate > 0 && buf.Format.SampleRate != sampleRate {
		mono, err = Resample(mono, buf.Format.SampleRate, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("read audio %s: %w", path, err)
		}
	}
	out := make([]float32, len(mono))
	for i, s := range mono {
		out[i] = float32(s)
	}
	return out, nil
}

// Resample converts mono samples between rates. The result always holds
// round(len(in)*to/from) samples: the filter tail is flushed, then the
// output is trimmed or zero-padded to that length.
func Resample(in []float64, from, to int) ([]float64, error) {
	if from == to || len(in) == 0 {
		return in, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	out = append(out, tail...)

	want := ResampledLen(len(in), from, to)
	if len(out) >= want {
		return out[:want], nil
	}
	return append(out, make([]float64, want-len(out))...), nil
}

// ResampledLen is the number of samples n input samples occupy at rate to.
func ResampledLen(n, from, to int) int {
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}
