package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: WarnLevel, Output: &buf})

	logger.Debug("dropped", nil)
	logger.Info("dropped", nil)
	logger.Warn("kept warn", nil)
	logger.Error("kept error", nil)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("messages below level leaked: %q", out)
	}
	if !strings.Contains(out, "kept warn") || !strings.Contains(out, "kept error") {
		t.Errorf("messages at or above level missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})
	logger.Info("indexing started", map[string]interface{}{"repository": "r:abc", "files": 12})

	var entry struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "info" || entry.Message != "indexing started" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["repository"] != "r:abc" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestHumanFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: InfoLevel, Output: &buf})
	logger.Info("job queued", map[string]interface{}{"jobId": "j1"})

	out := buf.String()
	if !strings.Contains(out, "[info] job queued") || !strings.Contains(out, "jobId=j1") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must accept all levels.
	logger := Discard()
	logger.Debug("x", nil)
	logger.Error("x", map[string]interface{}{"k": "v"})
}
