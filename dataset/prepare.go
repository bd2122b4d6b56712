package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// VerifyManifests checks that every manifest exists, parses and points at
// readable audio. It is meant to run once on the main process before any
// rank loads a split.
func VerifyManifests(dataFolder string, manifests map[string]string) error {
	repl := map[string]string{"data_root": dataFolder}
	for name, path := range manifests {
		if path == "" {
			continue
		}
		recs, err := LoadCSV(path, repl)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", name, err)
		}
		missing := 0
		for _, r := range recs {
			if _, err := os.Stat(r.Wav); err != nil {
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("manifest %s: %d of %d audio files missing under %s", name, missing, len(recs), filepath.Clean(dataFolder))
		}
		logrus.WithFields(logrus.Fields{"manifest": name, "records": len(recs)}).Info("manifest verified")
	}
	return nil
}
