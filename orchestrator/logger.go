package orchestrator

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Stat is one named value in a train log line.
type Stat struct {
	Key   string
	Value any
}

// Stats keeps insertion order so log lines read the same every epoch.
type Stats []Stat

// Get returns the float value of key.
func (s Stats) Get(key string) (float64, bool) {
	for _, st := range s {
		if st.Key != key {
			continue
		}
		switch v := st.Value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

// TrainLogger appends one line per stage summary to a text file and
// mirrors it to logrus.
type TrainLogger struct {
	mu        sync.Mutex
	path      string
	precision int
}

func NewTrainLogger(path string) (*TrainLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &TrainLogger{path: path, precision: 2}, nil
}

// LogStats writes "epoch: 1, lr: 3.00e-04 - train loss: 1.23 - valid ...".
// Nil stat groups are skipped.
func (l *TrainLogger) LogStats(meta Stats, groups map[string]Stats) error {
	parts := []string{l.join("", meta)}
	for _, name := range []string{"train", "valid", "test"} {
		if s, ok := groups[name]; ok && s != nil {
			parts = append(parts, l.join(name+" ", s))
		}
	}
	line := strings.Join(parts, " - ")

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return err
	}
	logrus.Info(line)
	return nil
}

func (l *TrainLogger) join(prefix string, s Stats) string {
	items := make([]string, 0, len(s))
	for _, st := range s {
		items = append(items, prefix+st.Key+": "+l.format(st.Value))
	}
	return strings.Join(items, ", ")
}

// format prints floats in (1, 100) as fixed point and everything else in
// scientific notation.
func (l *TrainLogger) format(v any) string {
	f, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	if f > 1 && f < 100 {
		return fmt.Sprintf("%.*f", l.precision, f)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Sprint(f)
	}
	return fmt.Sprintf("%.*e", l.precision, f)
}
