package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Service is one model backend endpoint.
type Service struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// Services lists the model backends used by the training recipe and the
// TTS command.
type Services struct {
	Encoder  Service `yaml:"encoder"`
	Seq2Seq  Service `yaml:"seq2seq"`
	Acoustic Service `yaml:"acoustic"`
	Vocoder  Service `yaml:"vocoder"`
}

type Root struct {
	Backend struct {
		Name   string `yaml:"name"`
		LogLvl string `yaml:"log_level"`
	} `yaml:"backend"`
	Services Services `yaml:"services"`
}

// Load reads the services file for CONFIG_ENV (default "dev"), trying
// config/<env>/services.yaml then configs/services.yaml.
func Load() (*Root, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "services.yaml"),
		filepath.Join("configs", "services.yaml"),
	}
	err := error(os.ErrNotExist)
	for _, p := range guess {
		var root *Root
		if root, err = LoadFile(p); err == nil {
			return root, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, err
}

func LoadFile(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var root Root
	if err := yaml.NewDecoder(f).Decode(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
