package clients

import (
	"context"
	"sync"
)

// Optimizer is a backend optimiser over one module's parameters. It
// satisfies checkpoint.Recoverable.
type Optimizer struct {
	h    *HTTP
	url  string
	name string

	mu sync.Mutex
	lr float64
}

type createOptReq struct {
	Name   string             `msgpack:"name"`
	Class  string             `msgpack:"class"`
	Module string             `msgpack:"module"`
	LR     float64            `msgpack:"lr"`
	Args   map[string]float64 `msgpack:"args,omitempty"`
}

// NewOptimizer asks the backend to create optimiser name of class over the
// parameters of module.
func (h *HTTP) NewOptimizer(ctx context.Context, url, name, class, module string, lr float64, args map[string]float64) (*Optimizer, error) {
	req := createOptReq{Name: name, Class: class, Module: module, LR: lr, Args: args}
	if err := h.call(ctx, url, "/optimizers/create", req, nil); err != nil {
		return nil, err
	}
	return &Optimizer{h: h, url: url, name: name, lr: lr}, nil
}

func (o *Optimizer) Name() string { return o.name }

func (o *Optimizer) path(method string) string { return "/optimizers/" + o.name + "/" + method }

func (o *Optimizer) Step(ctx context.Context) error {
	return o.h.call(ctx, o.url, o.path("step"), struct{}{}, nil)
}

func (o *Optimizer) ZeroGrad(ctx context.Context) error {
	return o.h.call(ctx, o.url, o.path("zero_grad"), struct{}{}, nil)
}

func (o *Optimizer) LR() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lr
}

type lrReq struct {
	LR float64 `msgpack:"lr"`
}

// SetLR updates the learning rate of every parameter group.
func (o *Optimizer) SetLR(ctx context.Context, lr float64) error {
	if err := o.h.call(ctx, o.url, o.path("set_lr"), lrReq{LR: lr}, nil); err != nil {
		return err
	}
	o.mu.Lock()
	o.lr = lr
	o.mu.Unlock()
	return nil
}

type optStateResp struct {
	State []byte  `msgpack:"state"`
	LR    float64 `msgpack:"lr"`
}

func (o *Optimizer) Save(ctx context.Context) ([]byte, error) {
	var out optStateResp
	err := o.h.call(ctx, o.url, o.path("state_dict"), struct{}{}, &out)
	return out.State, err
}

func (o *Optimizer) Load(ctx context.Context, data []byte) error {
	var out optStateResp
	if err := o.h.call(ctx, o.url, o.path("load_state_dict"), stateReq{State: data}, &out); err != nil {
		return err
	}
	if out.LR > 0 {
		o.mu.Lock()
		o.lr = out.LR
		o.mu.Unlock()
	}
	return nil
}
