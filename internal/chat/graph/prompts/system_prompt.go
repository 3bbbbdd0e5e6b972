package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	errx "github.com/dashgpt/server/internal/core/error"
	logx "github.com/dashgpt/server/pkg/logger"
)

// LoadSystemPrompt reads {dir}/system/{version}.txt.
func LoadSystemPrompt(dir, version string) (string, error) {
	if version == "" {
		return "", errx.Validation("system prompt version is empty")
	}
	path := filepath.Join(dir, "system", version+".txt")
	logx.Debug().Str("version", version).Str("path", path).Msg("loading system prompt")

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errx.NotFound(fmt.Sprintf("system prompt %q not found", version), err)
		}
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(b), nil
}
