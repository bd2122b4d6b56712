package clients

import (
	"context"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Seq2Seq is the task model: task encoder, attentional decoder, output
// projection, beam searcher and NLL cost, all hosted by a backend.
type Seq2Seq struct {
	h      *HTTP
	url    string
	module string

	// BeamSize is the beam width sent with every search. Zero leaves the
	// backend's own width in place.
	BeamSize int
}

func NewSeq2Seq(h *HTTP, url, module string) *Seq2Seq {
	if module == "" {
		module = "model"
	}
	return &Seq2Seq{h: h, url: url, module: module}
}

func (s *Seq2Seq) Module() string { return s.module }
func (s *Seq2Seq) URL() string    { return s.url }

type taskEncodeReq struct {
	Input tensor.Ref `msgpack:"input"`
}

// EncodeTask applies the task encoder to the speech encoder output.
func (s *Seq2Seq) EncodeTask(ctx context.Context, in tensor.Ref) (tensor.Ref, error) {
	var out refResp
	err := s.h.call(ctx, s.url, modulePath(s.module, "slu_enc"), taskEncodeReq{Input: in}, &out)
	return out.Ref, err
}

type decodeReq struct {
	TokensBOS [][]int    `msgpack:"tokens_bos"`
	Encoded   tensor.Ref `msgpack:"encoded"`
	WavLens   []float32  `msgpack:"wav_lens"`
}

// Decode embeds BOS-prefixed tokens, runs the decoder over the task
// encoding and returns per-token log-probabilities.
func (s *Seq2Seq) Decode(ctx context.Context, tokensBOS [][]int, encoded tensor.Ref, wavLens []float32) (tensor.Ref, error) {
	var out refResp
	err := s.h.call(ctx, s.url, modulePath(s.module, "decode"), decodeReq{TokensBOS: tokensBOS, Encoded: encoded, WavLens: wavLens}, &out)
	return out.Ref, err
}

type beamReq struct {
	Encoded  tensor.Ref `msgpack:"encoded"`
	WavLens  []float32  `msgpack:"wav_lens"`
	BeamSize int        `msgpack:"beam_size,omitempty"`
}

type beamResp struct {
	Tokens [][]int   `msgpack:"tokens"`
	Scores []float32 `msgpack:"scores"`
}

// BeamSearch decodes hypotheses from the task encoding.
func (s *Seq2Seq) BeamSearch(ctx context.Context, encoded tensor.Ref, wavLens []float32) ([][]int, error) {
	var out beamResp
	err := s.h.call(ctx, s.url, modulePath(s.module, "beam_search"), beamReq{Encoded: encoded, WavLens: wavLens, BeamSize: s.BeamSize}, &out)
	return out.Tokens, err
}

type nllReq struct {
	LogProbs tensor.Ref `msgpack:"log_probs"`
	Targets  [][]int    `msgpack:"targets"`
	Lens     []float32  `msgpack:"lens"`
}

type lossResp struct {
	Ref   tensor.Ref `msgpack:"ref"`
	Value float64    `msgpack:"value"`
}

// NLLLoss computes the masked negative log-likelihood of targets.
func (s *Seq2Seq) NLLLoss(ctx context.Context, logProbs tensor.Ref, targets [][]int, lens []float32) (tensor.Ref, float64, error) {
	var out lossResp
	err := s.h.call(ctx, s.url, modulePath(s.module, "nll_loss"), nllReq{LogProbs: logProbs, Targets: targets, Lens: lens}, &out)
	return out.Ref, out.Value, err
}
