// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Recognised key files: google-ai-api-key, anthropic-api-key, admin-token.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// Key file names.
const (
	GoogleAIKey  = "google-ai-api-key"
	AnthropicKey = "anthropic-api-key"
	AdminToken   = "admin-token"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// KeyFor names the secret file holding the API key for provider.
func KeyFor(provider types.AIProvider) string {
	if provider == types.ProviderClaude {
		return AnthropicKey
	}
	return GoogleAIKey
}

// Apply fills credentials that cfg leaves empty from secrets. Values already
// set by config or environment win.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = secrets[KeyFor(cfg.AI.Provider)]
	}
	if cfg.Server.AdminToken == "" {
		cfg.Server.AdminToken = secrets[AdminToken]
	}
}
