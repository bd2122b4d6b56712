package config

import (
	"strings"

	"github.com/spf13/viper"
)

// TTS configures the synthesis command. Every field can be set through
// the environment with a TTS_ prefix, e.g. TTS_ACOUSTIC_SOURCE.
type TTS struct {
	Backend        string // "http" or "onnx"
	AcousticSource string
	VocoderSource  string
	AcousticURL    string
	VocoderURL     string
	ONNXDir        string
	ONNXLibrary    string
	SaveDir        string
	HubURL         string
	OutputDir      string
	SampleRate     int
	Device         string
	Timeout        int
}

func LoadTTS() *TTS {
	v := viper.New()
	v.SetEnvPrefix("TTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", "http")
	v.SetDefault("acoustic_source", "speechbrain/tts-tacotron2-ljspeech")
	v.SetDefault("vocoder_source", "speechbrain/tts-hifigan-ljspeech")
	v.SetDefault("acoustic_url", "http://localhost:8601")
	v.SetDefault("vocoder_url", "http://localhost:8601")
	v.SetDefault("onnx_dir", "pretrained_models/onnx")
	v.SetDefault("onnx_library", "")
	v.SetDefault("save_dir", "pretrained_models")
	v.SetDefault("hub_url", "https://huggingface.co")
	v.SetDefault("output_dir", "tts_outputs")
	v.SetDefault("sample_rate", 22050)
	v.SetDefault("device", "")
	v.SetDefault("timeout", 300)

	return &TTS{
		Backend:        v.GetString("backend"),
		AcousticSource: v.GetString("acoustic_source"),
		VocoderSource:  v.GetString("vocoder_source"),
		AcousticURL:    v.GetString("acoustic_url"),
		VocoderURL:     v.GetString("vocoder_url"),
		ONNXDir:        v.GetString("onnx_dir"),
		ONNXLibrary:    v.GetString("onnx_library"),
		SaveDir:        v.GetString("save_dir"),
		HubURL:         v.GetString("hub_url"),
		OutputDir:      v.GetString("output_dir"),
		SampleRate:     v.GetInt("sample_rate"),
		Device:         v.GetString("device"),
		Timeout:        v.GetInt("timeout"),
	}
}

// ApplyServices fills the HTTP endpoints from a services file when the
// environment left them at their defaults.
func (t *TTS) ApplyServices(s Services) {
	if s.Acoustic.URL != "" && !envSet("TTS_ACOUSTIC_URL") {
		t.AcousticURL = s.Acoustic.URL
	}
	if s.Vocoder.URL != "" && !envSet("TTS_VOCODER_URL") {
		t.VocoderURL = s.Vocoder.URL
	}
}
