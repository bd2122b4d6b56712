package clients

import "context"

// Tokenizer is the sentencepiece model loaded on the backend.
type Tokenizer struct {
	h      *HTTP
	url    string
	module string
}

func NewTokenizer(h *HTTP, url, module string) *Tokenizer {
	if module == "" {
		module = "tokenizer"
	}
	return &Tokenizer{h: h, url: url, module: module}
}

func (t *Tokenizer) Module() string { return t.module }
func (t *Tokenizer) URL() string    { return t.url }

type encodeTextReq struct {
	Texts []string `msgpack:"texts"`
}

type idsResp struct {
	IDs [][]int `msgpack:"ids"`
}

type decodeIDsReq struct {
	IDs [][]int `msgpack:"ids"`
}

type textsResp struct {
	Texts []string `msgpack:"texts"`
}

func (t *Tokenizer) EncodeAsIDs(ctx context.Context, texts []string) ([][]int, error) {
	var out idsResp
	err := t.h.call(ctx, t.url, modulePath(t.module, "encode_as_ids"), encodeTextReq{Texts: texts}, &out)
	return out.IDs, err
}

func (t *Tokenizer) DecodeIDs(ctx context.Context, ids [][]int) ([]string, error) {
	var out textsResp
	err := t.h.call(ctx, t.url, modulePath(t.module, "decode_ids"), decodeIDsReq{IDs: ids}, &out)
	return out.Texts, err
}
