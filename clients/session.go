package clients

import (
	"context"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

// Session drives the autograd side of a backend: train/eval mode,
// backward passes and releasing activations between steps.
type Session struct {
	h   *HTTP
	url string
}

func NewSession(h *HTTP, url string) *Session { return &Session{h: h, url: url} }

type modeReq struct {
	Train bool `msgpack:"train"`
}

func (s *Session) SetMode(ctx context.Context, train bool) error {
	return s.h.call(ctx, s.url, "/session/mode", modeReq{Train: train}, nil)
}

type backwardReq struct {
	Loss tensor.Ref `msgpack:"loss"`
}

func (s *Session) Backward(ctx context.Context, loss tensor.Ref) error {
	return s.h.call(ctx, s.url, "/session/backward", backwardReq{Loss: loss}, nil)
}

// Release frees every activation the session holds.
func (s *Session) Release(ctx context.Context) error {
	return s.h.call(ctx, s.url, "/session/release", struct{}{}, nil)
}

type stateReq struct {
	State []byte `msgpack:"state,omitempty"`
}

type stateResp struct {
	State []byte `msgpack:"state"`
}

// Params is the parameter set of one backend module; it satisfies
// checkpoint.Recoverable.
type Params struct {
	h      *HTTP
	url    string
	module string
}

func NewParams(h *HTTP, url, module string) *Params {
	return &Params{h: h, url: url, module: module}
}

func (p *Params) Save(ctx context.Context) ([]byte, error) {
	var out stateResp
	err := p.h.call(ctx, p.url, modulePath(p.module, "state_dict"), stateReq{}, &out)
	return out.State, err
}

func (p *Params) Load(ctx context.Context, data []byte) error {
	return p.h.call(ctx, p.url, modulePath(p.module, "load_state_dict"), stateReq{State: data}, nil)
}
