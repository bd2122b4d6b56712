// Package distributed holds the few multi-process guards the training
// recipe needs. Process launch and gradient sync belong to the backend;
// here we only decide who writes files and who waits.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMainFailed is returned to waiting ranks when the main process
// reported a failure for the step they were waiting on.
var ErrMainFailed = errors.New("distributed: main process failed")

// started is the process start time. Without a run id, markers older than
// this belong to an earlier launch.
var started = time.Now()

// Rank returns the process rank from RANK, defaulting to 0.
func Rank() int {
	r, err := strconv.Atoi(os.Getenv("RANK"))
	if err != nil {
		return 0
	}
	return r
}

// RunID returns the launch id shared by every rank of one run, taken from
// RUN_ID. It is empty for single-process runs.
func RunID() string { return os.Getenv("RUN_ID") }

// IfMainProcess reports whether this process is rank 0.
func IfMainProcess() bool { return Rank() == 0 }

// marker is the content of a completion file: the launch it belongs to,
// when it was written and whether fn succeeded.
type marker struct {
	RunID   string
	Written time.Time
	Err     string
}

func (m marker) encode() []byte {
	return []byte(fmt.Sprintf("%s\n%d\n%s\n", m.RunID, m.Written.UnixNano(), m.Err))
}

func parseMarker(b []byte) (marker, bool) {
	parts := strings.SplitN(string(b), "\n", 3)
	if len(parts) < 3 {
		return marker{}, false
	}
	ns, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return marker{}, false
	}
	return marker{
		RunID:   parts[0],
		Written: time.Unix(0, ns),
		Err:     strings.TrimSuffix(parts[2], "\n"),
	}, true
}

// current reports whether m was written by the launch this process is in.
func (m marker) current() bool {
	if id := RunID(); id != "" {
		return m.RunID == id
	}
	return !m.Written.Before(started)
}

// RunOnMain runs fn on the main process and makes every other rank wait
// until it has finished. Completion is signalled through a marker file in
// syncDir, which must be shared by all ranks. A failure on the main process
// is written to the marker too, so waiting ranks return ErrMainFailed
// instead of blocking.
func RunOnMain(ctx context.Context, syncDir, name string, fn func(context.Context) error) error {
	path := filepath.Join(syncDir, "."+name+".done")
	if IfMainProcess() {
		_ = os.Remove(path)
		fnErr := fn(ctx)
		m := marker{RunID: RunID(), Written: time.Now()}
		if fnErr != nil {
			m.Err = fnErr.Error()
		}
		if err := writeMarker(syncDir, path, m); err != nil {
			return errors.Join(fnErr, err)
		}
		return fnErr
	}
	logrus.WithFields(logrus.Fields{"rank": Rank(), "step": name}).Info("waiting for main process")
	return waitFor(ctx, path, 500*time.Millisecond)
}

func writeMarker(dir, path string, m marker) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, m.encode(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func waitFor(ctx context.Context, path string, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if b, err := os.ReadFile(path); err == nil {
			if m, ok := parseMarker(b); ok && m.current() {
				if m.Err != "" {
					return fmt.Errorf("%w: %s: %s", ErrMainFailed, filepath.Base(path), m.Err)
				}
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("distributed: waiting for %s: %w", filepath.Base(path), ctx.Err())
		case <-t.C:
		}
	}
}
