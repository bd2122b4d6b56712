package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/storage"
)

// DataLoaderOpts controls batching for every split.
type DataLoaderOpts struct {
	BatchSize  int  `yaml:"batch_size"`
	Shuffle    bool `yaml:"shuffle"`
	NumWorkers int  `yaml:"num_workers"`
}

// NewBobOpts configures a NewBob learning-rate annealer.
type NewBobOpts struct {
	ImprovementThreshold float64 `yaml:"improvement_threshold"`
	AnnealingFactor      float64 `yaml:"annealing_factor"`
	Patient              int     `yaml:"patient"`
}

// OptimizerOpts names a backend optimiser class and its arguments.
type OptimizerOpts struct {
	Class string             `yaml:"class"`
	Args  map[string]float64 `yaml:"args"`
}

// AugmentOpts enables training-time waveform augmentation.
type AugmentOpts struct {
	ConcatOriginal bool    `yaml:"concat_original"`
	Speeds         []int   `yaml:"speeds"` // percent, e.g. [95, 105]
	DropChunks     int     `yaml:"drop_chunk_count"`
	DropChunkLen   float64 `yaml:"drop_chunk_length"` // seconds
}

// PretrainerOpts lists files fetched from a model hub before training.
type PretrainerOpts struct {
	HubURL    string            `yaml:"hub_url"`
	CollectIn string            `yaml:"collect_in"`
	Paths     map[string]string `yaml:"paths"` // name -> "<repo>/<file>" or local path
}

// HParams is the training recipe's hyperparameter file.
type HParams struct {
	Seed         int    `yaml:"seed"`
	OutputFolder string `yaml:"output_folder"`
	SaveFolder   string `yaml:"save_folder"`
	TrainLog     string `yaml:"train_log"`
	DataFolder   string `yaml:"data_folder"`
	Device       string `yaml:"device"`

	CSVTrain      string   `yaml:"csv_train"`
	CSVDevReal    string   `yaml:"csv_dev_real"`
	CSVDevSynth   string   `yaml:"csv_dev_synth"`
	CSVTestReal   string   `yaml:"csv_test_real"`
	CSVTestSynth  string   `yaml:"csv_test_synth"`
	CSVAllReal    string   `yaml:"csv_all_real"`
	TestOnAllReal bool     `yaml:"test_on_all_real"`
	SkipPrep      bool     `yaml:"skip_prep"`

	TestRealWERFile  string `yaml:"test_real_wer_file"`
	TestSynthWERFile string `yaml:"test_synth_wer_file"`
	AllRealWERFile   string `yaml:"all_real_wer_file"`

	NumberOfEpochs   int            `yaml:"number_of_epochs"`
	Sorting          string         `yaml:"sorting"`
	SampleRate       int            `yaml:"sample_rate"`
	DataLoader       DataLoaderOpts `yaml:"dataloader_opts"`
	BOSIndex         int            `yaml:"bos_index"`
	EOSIndex         int            `yaml:"eos_index"`
	BeamSize         int            `yaml:"beam_size"`
	ShowResultsEvery int            `yaml:"show_results_every"`

	LR                float64       `yaml:"lr"`
	LRWav2Vec2        float64       `yaml:"lr_wav2vec2"`
	Optimizer         OptimizerOpts `yaml:"opt_class"`
	Wav2Vec2Optimizer OptimizerOpts `yaml:"wav2vec2_opt_class"`
	Annealing         NewBobOpts    `yaml:"lr_annealing"`
	AnnealingWav2Vec2 NewBobOpts    `yaml:"lr_annealing_wav2vec2"`
	FreezeWav2Vec2    bool          `yaml:"freeze_wav2vec2"`

	Wav2Vec2Hub string         `yaml:"wav2vec2_hub"`
	Augment     *AugmentOpts   `yaml:"wav_augment"`
	Pretrainer  PretrainerOpts `yaml:"pretrainer"`
	Checkpoints storage.Config `yaml:"checkpoint_store"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seed", 1986)
	v.SetDefault("device", "")
	v.SetDefault("number_of_epochs", 20)
	v.SetDefault("sorting", "ascending")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("dataloader_opts.batch_size", 8)
	v.SetDefault("dataloader_opts.shuffle", true)
	v.SetDefault("bos_index", 0)
	v.SetDefault("eos_index", 0)
	v.SetDefault("beam_size", 80)
	v.SetDefault("show_results_every", 100)
	v.SetDefault("lr", 0.0003)
	v.SetDefault("lr_wav2vec2", 0.0001)
	v.SetDefault("opt_class.class", "adam")
	v.SetDefault("wav2vec2_opt_class.class", "adam")
	for _, k := range []string{"lr_annealing", "lr_annealing_wav2vec2"} {
		v.SetDefault(k+".improvement_threshold", 0.0025)
		v.SetDefault(k+".annealing_factor", 0.8)
		v.SetDefault(k+".patient", 0)
	}
	v.SetDefault("pretrainer.hub_url", "https://huggingface.co")
	v.SetDefault("train_log", "<output_folder>/train_log.txt")
	v.SetDefault("save_folder", "<output_folder>/save")
	v.SetDefault("test_real_wer_file", "<output_folder>/wer_test_real.txt")
	v.SetDefault("test_synth_wer_file", "<output_folder>/wer_test_synth.txt")
	v.SetDefault("all_real_wer_file", "<output_folder>/wer_all_real.txt")
}

// LoadHParams reads a YAML hyperparameter file and applies overrides of the
// form "--key=value" or "key=value" (dotted keys reach nested sections;
// values are parsed as YAML). String values may reference other top-level
// keys as "<key>".
func LoadHParams(path string, overrides []string) (*HParams, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("hparams: read %s: %w", path, err)
	}
	for _, o := range overrides {
		k, val, err := ParseOverride(o)
		if err != nil {
			return nil, err
		}
		v.Set(k, val)
	}

	settings := v.AllSettings()
	if err := expandRefs(settings, settings, 0); err != nil {
		return nil, err
	}
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return nil, err
	}
	var hp HParams
	if err := yaml.Unmarshal(raw, &hp); err != nil {
		return nil, fmt.Errorf("hparams: decode: %w", err)
	}
	if hp.OutputFolder == "" {
		return nil, fmt.Errorf("hparams: output_folder is required")
	}
	return &hp, nil
}

// ParseOverride splits "--key=value" into a lower-cased key and a YAML
// decoded value.
func ParseOverride(s string) (string, any, error) {
	s = strings.TrimLeft(s, "-")
	k, raw, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", nil, fmt.Errorf("hparams: override %q is not key=value", s)
	}
	var val any
	if err := yaml.Unmarshal([]byte(raw), &val); err != nil || val == nil {
		val = raw
	}
	return strings.ToLower(k), val, nil
}

var refPattern = regexp.MustCompile(`<([a-z0-9_]+)>`)

const maxRefDepth = 8

func expandRefs(root, node map[string]any, depth int) error {
	for k, v := range node {
		switch x := v.(type) {
		case string:
			s, err := expandString(root, x, depth)
			if err != nil {
				return fmt.Errorf("hparams: %s: %w", k, err)
			}
			node[k] = s
		case map[string]any:
			if err := expandRefs(root, x, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func expandString(root map[string]any, s string, depth int) (string, error) {
	if depth > maxRefDepth {
		return "", fmt.Errorf("reference cycle in %q", s)
	}
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		ref, ok := root[name]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("unknown reference %s", m)
			}
			return m
		}
		if rs, ok := ref.(string); ok {
			expanded, err := expandString(root, rs, depth+1)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return expanded
		}
		return fmt.Sprint(ref)
	})
	return out, firstErr
}
