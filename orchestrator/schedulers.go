package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// EpochCounter counts completed epochs up to Limit and is saved with
// every checkpoint so training resumes where it stopped.
type EpochCounter struct {
	Current int
	Limit   int
}

func NewEpochCounter(limit int) *EpochCounter { return &EpochCounter{Limit: limit} }

// Next advances to the following epoch and reports whether it should run.
func (e *EpochCounter) Next() bool {
	if e.Current >= e.Limit {
		return false
	}
	e.Current++
	return true
}

func (e *EpochCounter) Save(context.Context) ([]byte, error) {
	return []byte(strconv.Itoa(e.Current)), nil
}

func (e *EpochCounter) Load(_ context.Context, data []byte) error {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	e.Current = n
	return nil
}

// NewBob anneals a value by Factor whenever the relative improvement of a
// monitored metric drops below Threshold and no patience is left.
type NewBob struct {
	Value     float64
	Threshold float64
	Factor    float64
	Patient   int

	current int
	history []float64
}

func NewNewBob(initial, threshold, factor float64, patient int) *NewBob {
	return &NewBob{Value: initial, Threshold: threshold, Factor: factor, Patient: patient, current: patient}
}

// Step records metric and returns the value before and after annealing.
func (n *NewBob) Step(metric float64) (old, next float64) {
	old, next = n.Value, n.Value
	if len(n.history) > 0 {
		prev := n.history[len(n.history)-1]
		improvement := 0.0
		if prev != 0 {
			improvement = (prev - metric) / prev
		}
		if improvement < n.Threshold {
			if n.current == 0 {
				next *= n.Factor
				n.current = n.Patient
			} else {
				n.current--
			}
		}
	}
	n.history = append(n.history, metric)
	n.Value = next
	return old, next
}

type newBobState struct {
	Value   float64   `msgpack:"value"`
	Current int       `msgpack:"current_patient"`
	History []float64 `msgpack:"metric_values"`
}

func (n *NewBob) Save(context.Context) ([]byte, error) {
	return msgpack.Marshal(newBobState{Value: n.Value, Current: n.current, History: n.history})
}

func (n *NewBob) Load(_ context.Context, data []byte) error {
	var s newBobState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value, n.current, n.history = s.Value, s.Current, s.History
	return nil
}
