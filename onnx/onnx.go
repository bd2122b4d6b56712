// Package onnx runs exported Tacotron2 and HiFiGAN graphs locally through
// ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tts"
)

const (
	AcousticGraph = "tacotron2.onnx"
	VocoderGraph  = "hifigan.onnx"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the runtime library once per process. An empty library path
// falls back to ONNXRUNTIME_LIB_PATH and then the usual install locations.
func Init(library string) error {
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(libraryPath(library))
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("onnx: initialize runtime: %w", err)
		}
	})
	return initErr
}

func libraryPath(library string) string {
	if library != "" {
		return library
	}
	if p := os.Getenv("ONNXRUNTIME_LIB_PATH"); p != "" {
		return p
	}
	for _, p := range []string{"/usr/local/lib/libonnxruntime.so", "/usr/local/lib/libonnxruntime.dylib", "/usr/lib/libonnxruntime.so"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "/usr/local/lib/libonnxruntime.so"
}

// Loader builds sessions from graphs in Dir.
type Loader struct {
	Dir     string
	Library string
}

var _ tts.Loader = (*Loader)(nil)

func (l *Loader) LoadAcoustic(_ context.Context, device string) (tts.Acoustic, error) {
	s, err := l.session(AcousticGraph, []string{"text_ids"}, []string{"mel_outputs", "alignments"}, device)
	if err != nil {
		return nil, err
	}
	return &Acoustic{sess: s}, nil
}

func (l *Loader) LoadVocoder(_ context.Context, device string) (tts.Vocoder, error) {
	s, err := l.session(VocoderGraph, []string{"mel"}, []string{"waveform"}, device)
	if err != nil {
		return nil, err
	}
	return &Vocoder{sess: s}, nil
}

func (l *Loader) session(graph string, inputs, outputs []string, device string) (*ort.DynamicAdvancedSession, error) {
	if err := Init(l.Library); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()
	if strings.HasPrefix(device, "cuda") {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("onnx: cuda provider: %w", err)
		}
		defer cuda.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("onnx: cuda provider: %w", err)
		}
	}
	path := filepath.Join(l.Dir, graph)
	s, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: load %s: %w", path, err)
	}
	return s, nil
}

type Acoustic struct {
	sess *ort.DynamicAdvancedSession
}

func (a *Acoustic) EncodeText(_ context.Context, text string) (*tensor.Tensor, int, *tensor.Tensor, error) {
	ids := tts.TextToSequence(text)
	if len(ids) == 0 {
		return nil, 0, nil, fmt.Errorf("onnx: no symbols in %q", text)
	}
	in, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return nil, 0, nil, err
	}
	defer in.Destroy()

	outs := []ort.Value{nil, nil}
	if err := a.sess.Run([]ort.Value{in}, outs); err != nil {
		return nil, 0, nil, fmt.Errorf("onnx: run acoustic: %w", err)
	}
	defer destroyAll(outs)

	mel, err := toTensor(outs[0])
	if err != nil {
		return nil, 0, nil, err
	}
	align, err := toTensor(outs[1])
	if err != nil {
		return nil, 0, nil, err
	}
	return mel, mel.Dim(2), align, nil
}

func (a *Acoustic) Close() error { return a.sess.Destroy() }

type Vocoder struct {
	sess *ort.DynamicAdvancedSession
}

func (v *Vocoder) DecodeBatch(_ context.Context, mel *tensor.Tensor) (*tensor.Tensor, error) {
	shape := make([]int64, len(mel.Shape))
	for i, d := range mel.Shape {
		shape[i] = int64(d)
	}
	in, err := ort.NewTensor(ort.NewShape(shape...), mel.Data)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	outs := []ort.Value{nil}
	if err := v.sess.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("onnx: run vocoder: %w", err)
	}
	defer destroyAll(outs)

	wave, err := toTensor(outs[0])
	if err != nil {
		return nil, err
	}
	if len(wave.Shape) == 2 {
		wave.Shape = []int{wave.Shape[0], 1, wave.Shape[1]}
	}
	return wave, nil
}

func (v *Vocoder) Close() error { return v.sess.Destroy() }

func toTensor(v ort.Value) (*tensor.Tensor, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: output is %T, want float32 tensor", v)
	}
	shape := t.GetShape()
	out := &tensor.Tensor{Shape: make([]int, len(shape)), Data: append([]float32(nil), t.GetData()...)}
	for i, d := range shape {
		out.Shape[i] = int(d)
	}
	return out, out.Validate()
}

func destroyAll(vs []ort.Value) {
	for _, v := range vs {
		if v != nil {
			v.Destroy()
		}
	}
}
