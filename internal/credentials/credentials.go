// Package credentials provides the publishing secret.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"molt-highlights/internal/core/ports"
)

// Env reads the secret blob from an environment variable. When File is set,
// a blob stored there by an earlier rotation takes precedence, since the
// environment cannot be updated from inside a run.
type Env struct {
	Key  string
	File string
}

var _ ports.CredentialSource = Env{}

func (e Env) Load() (string, bool) {
	if e.File != "" {
		if data, err := os.ReadFile(e.File); err == nil {
			if blob := strings.TrimSpace(string(data)); blob != "" {
				return blob, true
			}
		}
	}
	blob := strings.TrimSpace(os.Getenv(e.Key))
	return blob, blob != ""
}

// Rotate stores blob in File. Without a File the rotation is dropped.
func (e Env) Rotate(blob string) error {
	if e.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.File), 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp := e.File + ".tmp"
	if err := os.WriteFile(tmp, []byte(blob), 0600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	if err := os.Rename(tmp, e.File); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credential: %w", err)
	}
	return nil
}

// Static always returns the same secret and ignores rotation.
type Static string

func (s Static) Load() (string, bool) { return string(s), s != "" }

func (Static) Rotate(string) error { return nil }
