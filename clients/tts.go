package clients

import (
	"context"
	"fmt"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Acoustic is a text-to-spectrogram model (Tacotron2) on a backend.
type Acoustic struct {
	h      *HTTP
	url    string
	module string
}

func NewAcoustic(h *HTTP, url string) *Acoustic {
	return &Acoustic{h: h, url: url, module: "acoustic"}
}

func (a *Acoustic) Module() string { return a.module }

type encodeTextsReq struct {
	Text string `msgpack:"text"`
}

type melResp struct {
	Mel       *tensor.Tensor `msgpack:"mel"`
	MelLen    int            `msgpack:"mel_length"`
	Alignment *tensor.Tensor `msgpack:"alignment"`
}

// EncodeText returns the mel spectrogram [1, n_mels, frames], its length
// and the attention alignment.
func (a *Acoustic) EncodeText(ctx context.Context, text string) (*tensor.Tensor, int, *tensor.Tensor, error) {
	var out melResp
	if err := a.h.call(ctx, a.url, modulePath(a.module, "encode_text"), encodeTextsReq{Text: text}, &out); err != nil {
		return nil, 0, nil, err
	}
	if out.Mel == nil {
		return nil, 0, nil, fmt.Errorf("encode_text: empty spectrogram")
	}
	return out.Mel, out.MelLen, out.Alignment, out.Mel.Validate()
}

// Vocoder turns spectrograms into waveforms (HiFiGAN) on a backend.
type Vocoder struct {
	h      *HTTP
	url    string
	module string
}

func NewVocoder(h *HTTP, url string) *Vocoder {
	return &Vocoder{h: h, url: url, module: "vocoder"}
}

func (v *Vocoder) Module() string { return v.module }

type decodeBatchReq struct {
	Mel *tensor.Tensor `msgpack:"mel"`
}

type waveResp struct {
	Wave *tensor.Tensor `msgpack:"wave"`
}

// DecodeBatch returns waveforms shaped [batch, 1, samples].
func (v *Vocoder) DecodeBatch(ctx context.Context, mel *tensor.Tensor) (*tensor.Tensor, error) {
	var out waveResp
	if err := v.h.call(ctx, v.url, modulePath(v.module, "decode_batch"), decodeBatchReq{Mel: mel}, &out); err != nil {
		return nil, err
	}
	if out.Wave == nil {
		return nil, fmt.Errorf("decode_batch: empty waveform")
	}
	return out.Wave, out.Wave.Validate()
}
