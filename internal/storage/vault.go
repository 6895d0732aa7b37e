package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	eventsFile    = "events.jsonl"
	vaultConfFile = "config.json"
	vaultVersion  = "1.0.0"
)

// VaultConfig is the per-vault settings document kept in the metadata directory.
type VaultConfig struct {
	Version  string        `json:"version"`
	DeviceID string        `json:"deviceId"`
	Created  time.Time     `json:"created"`
	Settings VaultSettings `json:"settings"`
}

type VaultSettings struct {
	Theme          string        `json:"theme"`
	EditorFontSize int           `json:"editorFontSize"`
	Graph          GraphSettings `json:"graphSettings"`
}

type GraphSettings struct {
	DefaultLayout string `json:"defaultLayout"`
	ShowLabels    bool   `json:"showLabels"`
	NodeSize      int    `json:"nodeSize"`
}

func defaultVaultConfig(now time.Time) VaultConfig {
	return VaultConfig{
		Version:  vaultVersion,
		DeviceID: uuid.NewString(),
		Created:  now.UTC(),
		Settings: VaultSettings{
			Theme:          "dark",
			EditorFontSize: 16,
			Graph: GraphSettings{
				DefaultLayout: "force-directed",
				ShowLabels:    true,
				NodeSize:      10,
			},
		},
	}
}

// InitVault creates the metadata directory under root with an empty event
// log and a fresh config. Existing files are left untouched, so calling it
// on an initialised vault is a no-op.
func InitVault(root string) error {
	meta := filepath.Join(root, MetaDir)
	if err := os.MkdirAll(meta, 0o755); err != nil {
		return fmt.Errorf("storage: init vault: %w", err)
	}

	events := filepath.Join(meta, eventsFile)
	if _, err := os.Stat(events); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(events, nil, 0o644); err != nil {
			return fmt.Errorf("storage: init vault: events: %w", err)
		}
	}

	conf := filepath.Join(meta, vaultConfFile)
	if _, err := os.Stat(conf); errors.Is(err, fs.ErrNotExist) {
		data, err := json.MarshalIndent(defaultVaultConfig(time.Now()), "", "  ")
		if err != nil {
			return fmt.Errorf("storage: init vault: marshal config: %w", err)
		}
		if err := os.WriteFile(conf, data, 0o644); err != nil {
			return fmt.Errorf("storage: init vault: config: %w", err)
		}
	}
	return nil
}

// IsVault reports whether root contains the metadata directory.
func IsVault(root string) bool {
	info, err := os.Stat(filepath.Join(root, MetaDir))
	return err == nil && info.IsDir()
}

// ReadVaultConfig loads the vault config written by InitVault.
func ReadVaultConfig(root string) (VaultConfig, error) {
	var vc VaultConfig
	data, err := os.ReadFile(filepath.Join(root, MetaDir, vaultConfFile))
	if err != nil {
		return vc, fmt.Errorf("storage: read vault config: %w", err)
	}
	if err := json.Unmarshal(data, &vc); err != nil {
		return vc, fmt.Errorf("storage: parse vault config: %w", err)
	}
	return vc, nil
}
