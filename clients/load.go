package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

// Load uploads pretrained files for module and asks the backend to build
// it on device. files maps a logical name ("model", "tokenizer", ...) to a
// local path.
func (h *HTTP) Load(ctx context.Context, url, module, device string, files map[string]string) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	if err := w.WriteField("module", module); err != nil {
		return err
	}
	if err := w.WriteField("device", device); err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := attach(w, name, files[name]); err != nil {
			return fmt.Errorf("load %s: %w", module, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/load", &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Session-Id", h.session)

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("load %s %s: %s: %w", module, resp.Status, string(body), ErrStatus)
	}
	return nil
}

func attach(w *multipart.Writer, name, path string) error {
	fw, err := w.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		return err
	}
	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = io.Copy(fw, fd)
	return err
}
