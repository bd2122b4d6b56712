package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedSorting is returned for any sorting mode other than
// ascending, descending or random.
var ErrUnsupportedSorting = errors.New("sorting must be random, ascending or descending")

type SortMode int

const (
	SortRandom SortMode = iota
	SortAscending
	SortDescending
)

func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case "ascending":
		return SortAscending, nil
	case "descending":
		return SortDescending, nil
	case "random":
		return SortRandom, nil
	}
	return 0, fmt.Errorf("sorting %q: %w", s, ErrUnsupportedSorting)
}

func (m SortMode) String() string {
	switch m {
	case SortAscending:
		return "ascending"
	case SortDescending:
		return "descending"
	}
	return "random"
}

// DisablesShuffle reports whether the mode fixes the batch order.
func (m SortMode) DisablesShuffle() bool { return m != SortRandom }

// SortByDuration returns a sorted copy; random leaves the order alone.
func SortByDuration(recs []Record, m SortMode) []Record {
	out := append([]Record(nil), recs...)
	switch m {
	case SortAscending:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Duration < out[j].Duration })
	case SortDescending:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Duration > out[j].Duration })
	}
	return out
}
