// Package device picks where backend models run.
package device

import (
	"os"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
)

// probe paths and env are variables so tests can point them elsewhere.
var (
	nvidiaDevice = "/dev/nvidia0"
	lookupEnv    = os.LookupEnv
)

// Select returns requested when set, otherwise cuda when a GPU is visible
// and cpu elsewhere.
func Select(requested string) string {
	if requested != "" {
		return requested
	}
	if GPUVisible() {
		return CUDA
	}
	return CPU
}

func GPUVisible() bool {
	if v, ok := lookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		return v != "" && v != "-1"
	}
	_, err := os.Stat(nvidiaDevice)
	return err == nil
}

// Report logs the chosen device and the host CPU.
func Report(dev string) {
	logrus.WithFields(logrus.Fields{
		"device":  dev,
		"cpu":     cpuid.CPU.BrandName,
		"cores":   cpuid.CPU.PhysicalCores,
		"threads": cpuid.CPU.LogicalCores,
		"avx2":    cpuid.CPU.Supports(cpuid.AVX2),
		"avx512":  cpuid.CPU.Supports(cpuid.AVX512F),
	}).Info("compute device")
}
