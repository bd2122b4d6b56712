package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ExperimentRecord is written next to the copied hyperparameters so a run
// can be reproduced.
type ExperimentRecord struct {
	HParamsFile string    `yaml:"hparams_file"`
	Overrides   []string  `yaml:"overrides,omitempty"`
	StartedAt   time.Time `yaml:"started_at"`
	Rank        int       `yaml:"rank"`
}

// CreateExperimentDirectory creates dir, copies the hyperparameter file to
// hyperparams.yaml, records the overrides and routes logrus to both stderr
// and dir/log.txt. The returned closer restores stderr-only logging.
func CreateExperimentDirectory(dir, hparamsFile string, overrides []string, rank int) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := copyFile(hparamsFile, filepath.Join(dir, "hyperparams.yaml")); err != nil {
		return nil, fmt.Errorf("copy hparams: %w", err)
	}
	rec := ExperimentRecord{HParamsFile: hparamsFile, Overrides: overrides, StartedAt: time.Now(), Rank: rank}
	if err := writeYAML(filepath.Join(dir, "experiment.yaml"), rec); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "log.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	logrus.WithField("dir", dir).Info("experiment directory ready")
	return logCloser{f}, nil
}

type logCloser struct{ f *os.File }

func (c logCloser) Close() error {
	logrus.SetOutput(os.Stderr)
	return c.f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
