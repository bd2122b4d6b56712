package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/tensor"
)

func msgpackHandler(t *testing.T, wantPath string, in any, out any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		if r.Header.Get("X-Session-Id") == "" {
			t.Error("missing session header")
		}
		if in != nil {
			if err := msgpack.NewDecoder(r.Body).Decode(in); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", contentType)
		if out != nil {
			b, _ := msgpack.Marshal(out)
			w.Write(b)
		}
	}
}

func TestSeq2SeqBeamSearch(t *testing.T) {
	var got beamReq
	srv := httptest.NewServer(msgpackHandler(t, "/modules/model/beam_search", &got,
		beamResp{Tokens: [][]int{{5, 6, 0}}}))
	defer srv.Close()

	s := NewSeq2Seq(NewHTTP(time.Second), srv.URL, "")
	s.BeamSize = 80
	toks, err := s.BeamSearch(context.Background(), tensor.Ref{ID: "enc-1"}, []float32{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 1 || toks[0][1] != 6 {
		t.Fatalf("tokens = %v", toks)
	}
	if got.Encoded.ID != "enc-1" {
		t.Fatalf("request ref = %+v", got.Encoded)
	}
	if got.BeamSize != 80 {
		t.Fatalf("beam_size = %d, want 80", got.BeamSize)
	}
}

func TestNLLLossReturnsValue(t *testing.T) {
	srv := httptest.NewServer(msgpackHandler(t, "/modules/model/nll_loss", nil,
		lossResp{Ref: tensor.Ref{ID: "loss"}, Value: 1.25}))
	defer srv.Close()

	ref, v, err := NewSeq2Seq(NewHTTP(time.Second), srv.URL, "model").NLLLoss(context.Background(), tensor.Ref{ID: "p"}, [][]int{{1, 0}}, []float32{1})
	if err != nil {
		t.Fatal(err)
	}
	if ref.ID != "loss" || v != 1.25 {
		t.Fatalf("loss = %+v %v", ref, v)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewEncoder(NewHTTP(time.Second), srv.URL, "").Encode(context.Background(), tensor.New(1, 4), []float32{1})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("err = %v", err)
	}
}

func TestOptimizerTracksLR(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/optimizers/create", msgpackHandler(t, "/optimizers/create", nil, nil))
	var lr lrReq
	mux.HandleFunc("/optimizers/optimizer/set_lr", msgpackHandler(t, "/optimizers/optimizer/set_lr", &lr, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	opt, err := NewHTTP(time.Second).NewOptimizer(ctx, srv.URL, "optimizer", "adam", "model", 0.1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := opt.SetLR(ctx, 0.08); err != nil {
		t.Fatal(err)
	}
	if opt.LR() != 0.08 || lr.LR != 0.08 {
		t.Fatalf("lr = %v (sent %v)", opt.LR(), lr.LR)
	}
}

func TestLoadUploadsFiles(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "model.ckpt")
	os.WriteFile(ckpt, []byte("weights"), 0o644)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		if r.FormValue("module") != "acoustic" || r.FormValue("device") != "cpu" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("model")
		if err != nil {
			t.Error(err)
			return
		}
		b, _ := io.ReadAll(f)
		if string(b) != "weights" {
			t.Errorf("file body = %q", b)
		}
	}))
	defer srv.Close()

	err := NewHTTP(time.Second).Load(context.Background(), srv.URL, "acoustic", "cpu", map[string]string{"model": ckpt})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVocoderRejectsBadShape(t *testing.T) {
	srv := httptest.NewServer(msgpackHandler(t, "/modules/vocoder/decode_batch", nil,
		waveResp{Wave: &tensor.Tensor{Shape: []int{1, 1, 4}, Data: []float32{0, 1}}}))
	defer srv.Close()

	if _, err := NewVocoder(NewHTTP(time.Second), srv.URL).DecodeBatch(context.Background(), tensor.New(1, 80, 2)); err == nil {
		t.Fatal("expected shape error")
	}
}
