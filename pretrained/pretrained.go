// Package pretrained collects model files from a HuggingFace-style hub
// into a local cache.
package pretrained

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Fetcher struct {
	HubURL   string
	CacheDir string

	c *http.Client
}

func NewFetcher(hubURL, cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Fetcher{
		HubURL:   strings.TrimRight(hubURL, "/"),
		CacheDir: cacheDir,
		c:        &http.Client{Timeout: timeout},
	}
}

// Fetch returns the cached path of file from repo, downloading it first
// when it is not cached yet.
func (f *Fetcher) Fetch(ctx context.Context, repo, file string) (string, error) {
	dst := filepath.Join(f.CacheDir, strings.ReplaceAll(repo, "/", "--"), filepath.FromSlash(file))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	url := f.HubURL + "/" + repo + "/resolve/main/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("hub %s %s: %s", url, resp.Status, string(b))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fetch-*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	logrus.WithFields(logrus.Fields{"repo": repo, "file": file, "bytes": n}).Info("fetched pretrained file")
	return dst, nil
}

// Collect resolves every source to a local path. A source is either an
// existing local file or "<org>/<repo>/<file>" on the hub.
func (f *Fetcher) Collect(ctx context.Context, sources map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(sources))
	for name, src := range sources {
		if _, err := os.Stat(src); err == nil {
			out[name] = src
			continue
		}
		repo, file, err := SplitSource(src)
		if err != nil {
			return nil, fmt.Errorf("pretrained %s: %w", name, err)
		}
		p, err := f.Fetch(ctx, repo, file)
		if err != nil {
			return nil, fmt.Errorf("pretrained %s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// FetchRepo collects files from one repo, keyed by file name.
func (f *Fetcher) FetchRepo(ctx context.Context, repo string, files ...string) (map[string]string, error) {
	sources := make(map[string]string, len(files))
	for _, file := range files {
		sources[strings.TrimSuffix(file, filepath.Ext(file))] = repo + "/" + file
	}
	return f.Collect(ctx, sources)
}

// SplitSource splits "<org>/<repo>/<file...>".
func SplitSource(src string) (repo, file string, err error) {
	parts := strings.SplitN(src, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("source %q is neither a local file nor <org>/<repo>/<file>", src)
	}
	return parts[0] + "/" + parts[1], parts[2], nil
}
