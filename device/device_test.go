package device

import (
	"path/filepath"
	"testing"
)

func withProbe(t *testing.T, env map[string]string, devPath string) {
	t.Helper()
	oldEnv, oldDev := lookupEnv, nvidiaDevice
	t.Cleanup(func() { lookupEnv, nvidiaDevice = oldEnv, oldDev })
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	nvidiaDevice = devPath
}

func TestSelect(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nvidia0")

	withProbe(t, nil, missing)
	if got := Select(""); got != CPU {
		t.Fatalf("no gpu = %s", got)
	}
	if got := Select("cuda:1"); got != "cuda:1" {
		t.Fatalf("explicit device = %s", got)
	}

	withProbe(t, map[string]string{"CUDA_VISIBLE_DEVICES": "0"}, missing)
	if got := Select(""); got != CUDA {
		t.Fatalf("visible gpu = %s", got)
	}

	withProbe(t, map[string]string{"CUDA_VISIBLE_DEVICES": "-1"}, t.TempDir())
	if got := Select(""); got != CPU {
		t.Fatalf("hidden gpu = %s", got)
	}

	withProbe(t, nil, t.TempDir())
	if got := Select(""); got != CUDA {
		t.Fatalf("device node present = %s", got)
	}
}
