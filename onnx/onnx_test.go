package onnx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLibraryPathPrecedence(t *testing.T) {
	if got := libraryPath("/opt/ort/libonnxruntime.so"); got != "/opt/ort/libonnxruntime.so" {
		t.Fatalf("explicit path = %s", got)
	}
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	if err := os.WriteFile(lib, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ONNXRUNTIME_LIB_PATH", lib)
	if got := libraryPath(""); got != lib {
		t.Fatalf("env path = %s", got)
	}
}
