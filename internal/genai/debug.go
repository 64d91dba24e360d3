package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// debugEntry is one model exchange as written to the debug directory.
type debugEntry struct {
	Timestamp string `json:"timestamp"`
	Method    string `json:"method"`
	Model     string `json:"model"`
	Params    any    `json:"params"`
	Response  any    `json:"response"`
}

// writeDebugLog dumps a request/response pair as JSON under stateDir/debug.
// Failures are logged and otherwise ignored.
func writeDebugLog(stateDir, method, model string, params, response any) {
	dir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("genai.writeDebugLog: failed to create debug directory", "dir", dir, "error", err)
		return
	}

	now := time.Now()
	entry := debugEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Method:    method,
		Model:     model,
		Params:    params,
		Response:  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.writeDebugLog: failed to encode debug entry", "method", method, "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s.json", now.Format("20060102-150405.000000000"), method)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("genai.writeDebugLog: failed to write debug file", "path", path, "error", err)
		return
	}
	slog.Debug("genai.writeDebugLog: wrote debug file", "path", path)
}
