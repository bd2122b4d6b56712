// Package clients talks to the model backends over HTTP. Request and
// response bodies are msgpack; tensors that stay on the backend are
// addressed by tensor.Ref.
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const contentType = "application/msgpack"

// ErrStatus is wrapped by every non-200 backend response.
var ErrStatus = errors.New("unexpected backend status")

type HTTP struct {
	c       *http.Client
	session string
}

// NewHTTP returns a client bound to a fresh backend session id, so
// activations from concurrent runs never collide on a shared server.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{c: &http.Client{Timeout: timeout}, session: uuid.New().String()}
}

// Session returns the backend session id sent with every request.
func (h *HTTP) Session() string { return h.session }

func (h *HTTP) call(ctx context.Context, url, path string, in, out any) error {
	body, err := msgpack.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("X-Session-Id", h.session)

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %w", path, resp.Status, string(b), ErrStatus)
	}
	if out == nil {
		return nil
	}
	if err := msgpack.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", path, err)
	}
	return nil
}

func modulePath(module, method string) string {
	return "/modules/" + module + "/" + method
}
