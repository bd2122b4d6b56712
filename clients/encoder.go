package clients

import (
	"context"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

type encodeReq struct {
	Wavs *tensor.Tensor `msgpack:"wavs"`
	Lens []float32      `msgpack:"lens"`
	// NoGrad runs the forward pass without building a graph.
	NoGrad bool `msgpack:"no_grad,omitempty"`
}

type refResp struct {
	Ref tensor.Ref `msgpack:"ref"`
}

// Encoder is the pretrained speech encoder (wav2vec2) hosted by a backend.
type Encoder struct {
	h      *HTTP
	url    string
	module string

	// Freeze keeps the encoder weights out of training.
	Freeze bool
}

func NewEncoder(h *HTTP, url, module string) *Encoder {
	if module == "" {
		module = "wav2vec2"
	}
	return &Encoder{h: h, url: url, module: module}
}

func (e *Encoder) Module() string { return e.module }
func (e *Encoder) URL() string    { return e.url }

// Encode runs the encoder over a padded waveform batch.
func (e *Encoder) Encode(ctx context.Context, wavs *tensor.Tensor, lens []float32) (tensor.Ref, error) {
	var out refResp
	err := e.h.call(ctx, e.url, modulePath(e.module, "forward"), encodeReq{Wavs: wavs, Lens: lens, NoGrad: e.Freeze}, &out)
	return out.Ref, err
}
