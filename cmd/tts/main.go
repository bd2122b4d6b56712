// Command tts converts text to speech.
//
// Usage:
//
//	tts TEXT [--output|-o PATH]
//
// Models are loaded from the backend configured through TTS_* environment
// variables (see config.LoadTTS). Without --output the audio is written to
// tts_outputs/<slug of text>.wav.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/clients"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/config"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/device"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/onnx"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/pretrained"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tts"
)

var outputPath string

var rootCmd = &cobra.Command{
	Use:           "tts TEXT",
	Short:         "Text-to-Speech Conversion",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSynthesizer()
		if err != nil {
			return err
		}
		// Synthesis failures are reported on stdout and do not change the
		// exit status.
		s.Synthesize(cmd.Context(), args[0], outputPath)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output WAV file path (optional)")
}

func newSynthesizer() (*tts.Synthesizer, error) {
	c := config.LoadTTS()
	if root, err := config.Load(); err == nil {
		c.ApplyServices(root.Services)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var loader tts.Loader
	switch c.Backend {
	case "http":
		loader = &tts.Remote{
			HTTP:           clients.NewHTTP(time.Duration(c.Timeout) * time.Second),
			Fetcher:        pretrained.NewFetcher(c.HubURL, c.SaveDir, 0),
			AcousticURL:    c.AcousticURL,
			AcousticSource: c.AcousticSource,
			VocoderURL:     c.VocoderURL,
			VocoderSource:  c.VocoderSource,
		}
	case "onnx":
		loader = &onnx.Loader{Dir: c.ONNXDir, Library: c.ONNXLibrary}
	default:
		return nil, fmt.Errorf("unknown TTS backend %q (want http or onnx)", c.Backend)
	}

	logrus.WithField("backend", c.Backend).Info("tts backend")
	dev := device.Select(c.Device)
	device.Report(dev)
	return &tts.Synthesizer{
		Loader:     loader,
		Device:     dev,
		OutputDir:  c.OutputDir,
		SampleRate: c.SampleRate,
	}, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
