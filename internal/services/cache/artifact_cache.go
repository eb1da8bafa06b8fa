package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// ArtifactCache is a content-addressed stage artifact store on disk.
// Artifacts live at {dir}/{stage}/{key}.json; the key is a fingerprint of
// the stage's canonical inputs, so a hit means identical inputs and the
// stage can be skipped.
type ArtifactCache struct {
	dir    string
	logger arbor.ILogger
}

// NewArtifactCache creates the cache root if needed.
func NewArtifactCache(dir string, logger arbor.ILogger) (*ArtifactCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &ArtifactCache{dir: dir, logger: logger}, nil
}

// Fingerprint returns a stable hex digest of the canonical JSON encoding
// of the inputs. Go's encoder sorts map keys, so equal inputs always hash
// equal.
func Fingerprint(inputs ...interface{}) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, in := range inputs {
		// Encoding basic values and structs cannot fail here.
		_ = enc.Encode(in)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ArtifactCache) path(stage, key string) string {
	return filepath.Join(c.dir, stage, key+".json")
}

// Get decodes the cached artifact for {stage}/{key} into out. Returns
// false when absent. A corrupt entry is treated as a miss and removed.
func (c *ArtifactCache) Get(stage, key string, out interface{}) (bool, error) {
	data, err := os.ReadFile(c.path(stage, key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Str("stage", stage).Str("key", key).Msg("Removing corrupt cache entry")
		os.Remove(c.path(stage, key))
		return false, nil
	}

	c.logger.Debug().Str("stage", stage).Str("key", key).Msg("Cache hit")
	return true, nil
}

// Put stores the artifact under {stage}/{key}. The write goes through a
// temp file and rename so readers never observe a partial artifact.
func (c *ArtifactCache) Put(stage, key string, artifact interface{}) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache artifact: %w", err)
	}

	stageDir := filepath.Join(c.dir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache stage directory: %w", err)
	}

	tmp, err := os.CreateTemp(stageDir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path(stage, key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize cache entry: %w", err)
	}
	return nil
}

// Prune removes entries older than maxAge seconds, returning the count
// removed. Called from the maintenance schedule.
func (c *ArtifactCache) Prune(maxAge int64) (int, error) {
	cutoff := time.Now().Add(-time.Duration(maxAge) * time.Second)
	removed := 0

	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune cache: %w", err)
	}

	if removed > 0 {
		c.logger.Info().Int("removed", removed).Msg("Pruned stage artifact cache")
	}
	return removed, nil
}

var _ interfaces.ArtifactCache = (*ArtifactCache)(nil)
