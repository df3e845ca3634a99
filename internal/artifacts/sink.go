// Package artifacts persists workflow evidence: screenshots and
// verification snapshots, grouped by kind under a root directory.
package artifacts

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const timestampLayout = "20060102_150405"

// Sink writes artifacts under <root>/screenshots and <root>/verifications.
type Sink struct {
	root string
	log  *zap.Logger
	now  func() time.Time
}

// NewSink creates a Sink rooted at dir. Directories are created lazily
// on first write.
func NewSink(dir string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		root: dir,
		log:  logger.Named("artifacts"),
		now:  time.Now,
	}
}

// SaveScreenshot decodes the base64 PNG and writes it as
// <root>/screenshots/<tag>_<timestamp>.png, returning the path.
func (s *Sink) SaveScreenshot(b64 string, tag string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decoding screenshot: %w", err)
	}

	dir := filepath.Join(s.root, "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", tag, s.now().Format(timestampLayout)))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot %s: %w", path, err)
	}

	s.log.Info("Screenshot saved.", zap.String("path", path), zap.Int("bytes", len(raw)))
	return path, nil
}

// SaveVerification writes the payload as pretty JSON under
// <root>/verifications/<tag>_verification_<timestamp>.json, wrapped in
// an envelope carrying the capture time and workflow tag.
func (s *Sink) SaveVerification(payload map[string]any, tag string) (string, error) {
	envelope := map[string]any{
		"timestamp":     s.now().Format(time.RFC3339),
		"workflow_type": tag,
		"verification":  payload,
	}
	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling verification payload: %w", err)
	}

	dir := filepath.Join(s.root, "verifications")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating verification directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_verification_%s.json", tag, s.now().Format(timestampLayout)))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing verification %s: %w", path, err)
	}

	s.log.Info("Verification snapshot saved.", zap.String("path", path))
	return path, nil
}
