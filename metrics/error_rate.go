// Package metrics accumulates word, character and sentence error rates
// over an evaluation stage.
package metrics

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	eps       = "<eps>"
	wordSpace = "_"
)

// Summary is the finalised view of an ErrorRateStats.
type Summary struct {
	// ErrorRate is WER (or CER when splitting tokens), in percent.
	ErrorRate      float64
	SER            float64
	Insertions     int
	Deletions      int
	Substitutions  int
	ScoredTokens   int
	ScoredSents    int
	ErroneousSents int
}

// Get returns a summary field by the names used in stats logs.
func (s Summary) Get(key string) (float64, bool) {
	switch key {
	case "error_rate", "WER", "CER":
		return s.ErrorRate, true
	case "SER":
		return s.SER, true
	case "insertions":
		return float64(s.Insertions), true
	case "deletions":
		return float64(s.Deletions), true
	case "substitutions":
		return float64(s.Substitutions), true
	}
	return 0, false
}

type scored struct {
	id     string
	ref    []string
	hyp    []string
	steps  []Step
	counts Counts
}

// ErrorRateStats collects per-utterance alignments. The zero value is not
// usable; use NewWER or NewCER.
type ErrorRateStats struct {
	splitTokens bool

	mu     sync.Mutex
	scores []scored
}

// NewWER scores whitespace-separated tokens as given.
func NewWER() *ErrorRateStats { return &ErrorRateStats{} }

// NewCER splits every word into characters, joining words with "_" so that
// word boundaries also count.
func NewCER() *ErrorRateStats { return &ErrorRateStats{splitTokens: true} }

// Append scores a batch. ids, predict and target must have equal length.
func (s *ErrorRateStats) Append(ids []string, predict, target [][]string) error {
	if len(ids) != len(predict) || len(ids) != len(target) {
		return fmt.Errorf("metrics: %d ids, %d predictions, %d targets", len(ids), len(predict), len(target))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		ref, hyp := target[i], predict[i]
		if s.splitTokens {
			ref, hyp = splitChars(ref), splitChars(hyp)
		}
		steps, c := Align(ref, hyp)
		s.scores = append(s.scores, scored{id: id, ref: ref, hyp: hyp, steps: steps, counts: c})
	}
	return nil
}

// Len returns the number of scored utterances.
func (s *ErrorRateStats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scores)
}

func (s *ErrorRateStats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum Summary
	for _, sc := range s.scores {
		sum.Insertions += sc.counts.Ins
		sum.Deletions += sc.counts.Del
		sum.Substitutions += sc.counts.Sub
		sum.ScoredTokens += len(sc.ref)
		sum.ScoredSents++
		if sc.counts.Errors() > 0 {
			sum.ErroneousSents++
		}
	}
	errs := sum.Insertions + sum.Deletions + sum.Substitutions
	if sum.ScoredTokens > 0 {
		sum.ErrorRate = 100 * float64(errs) / float64(sum.ScoredTokens)
	}
	if sum.ScoredSents > 0 {
		sum.SER = 100 * float64(sum.ErroneousSents) / float64(sum.ScoredSents)
	}
	return sum
}

// WriteStats writes the summary header followed by every alignment.
func (s *ErrorRateStats) WriteStats(w io.Writer) error {
	sum := s.Summarize()
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%%WER %.2f [ %d / %d, %d ins, %d del, %d sub ]\n",
		sum.ErrorRate, sum.Insertions+sum.Deletions+sum.Substitutions, sum.ScoredTokens,
		sum.Insertions, sum.Deletions, sum.Substitutions)
	fmt.Fprintf(&b, "%%SER %.2f [ %d / %d ]\n", sum.SER, sum.ErroneousSents, sum.ScoredSents)
	b.WriteString(strings.Repeat("=", 80) + "\nALIGNMENTS\n\n")
	b.WriteString("Format:\n<utterance-id>, WER DETAILS\n<reference>\n<operations>\n<hypothesis>\n")
	for _, sc := range s.scores {
		b.WriteString(strings.Repeat("=", 80) + "\n")
		rate := 0.0
		if len(sc.ref) > 0 {
			rate = 100 * float64(sc.counts.Errors()) / float64(len(sc.ref))
		}
		fmt.Fprintf(&b, "%s, %%WER %.2f [ %d / %d, %d ins, %d del, %d sub ]\n",
			sc.id, rate, sc.counts.Errors(), len(sc.ref), sc.counts.Ins, sc.counts.Del, sc.counts.Sub)
		writeAlignment(&b, sc)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeAlignment(b *strings.Builder, sc scored) {
	refs := make([]string, len(sc.steps))
	ops := make([]string, len(sc.steps))
	hyps := make([]string, len(sc.steps))
	for i, st := range sc.steps {
		refs[i], hyps[i] = eps, eps
		if st.Ref >= 0 {
			refs[i] = sc.ref[st.Ref]
		}
		if st.Hyp >= 0 {
			hyps[i] = sc.hyp[st.Hyp]
		}
		ops[i] = string(st.Op)
		width := max(len(refs[i]), len(hyps[i]), 1)
		refs[i] = pad(refs[i], width)
		ops[i] = pad(ops[i], width)
		hyps[i] = pad(hyps[i], width)
	}
	b.WriteString(strings.Join(refs, " ; ") + "\n")
	b.WriteString(strings.Join(ops, " ; ") + "\n")
	b.WriteString(strings.Join(hyps, " ; ") + "\n")
}

func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		left := n / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", n-left)
	}
	return s
}

func splitChars(words []string) []string {
	var out []string
	for i, w := range words {
		if i > 0 {
			out = append(out, wordSpace)
		}
		for _, r := range w {
			out = append(out, string(r))
		}
	}
	return out
}
