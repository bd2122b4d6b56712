package pretrained

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestFetchCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speechbrain/tts-hifigan-ljspeech/resolve/main/generator.ckpt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir(), 0)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		p, err := f.Fetch(ctx, "speechbrain/tts-hifigan-ljspeech", "generator.ckpt")
		if err != nil {
			t.Fatal(err)
		}
		b, err := os.ReadFile(p)
		if err != nil || string(b) != "weights" {
			t.Fatalf("cached file = %q, %v", b, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("hub hit %d times", hits.Load())
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir(), 0)
	if _, err := f.Fetch(context.Background(), "org/repo", "missing.ckpt"); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(filepath.Join(f.CacheDir, "org--repo"))
	if len(entries) != 0 {
		t.Fatalf("partial files left behind: %v", entries)
	}
}

func TestCollectPrefersLocalFiles(t *testing.T) {
	local := filepath.Join(t.TempDir(), "tokenizer.model")
	if err := os.WriteFile(local, []byte("tok"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher("http://127.0.0.1:0", t.TempDir(), 0)
	got, err := f.Collect(context.Background(), map[string]string{"tokenizer": local})
	if err != nil {
		t.Fatal(err)
	}
	if got["tokenizer"] != local {
		t.Fatalf("tokenizer = %s", got["tokenizer"])
	}
}

func TestSplitSource(t *testing.T) {
	repo, file, err := SplitSource("speechbrain/SLU-direct/tokenizer_decoder_bpe51.model")
	if err != nil || repo != "speechbrain/SLU-direct" || file != "tokenizer_decoder_bpe51.model" {
		t.Fatalf("split = %q %q %v", repo, file, err)
	}
	if _, _, err := SplitSource("model.ckpt"); err == nil {
		t.Fatal("expected error for bare file name")
	}
}
