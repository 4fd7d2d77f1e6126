package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/username/simcal/internal/calendar"
)

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists calendar snapshots under a key.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*calendar.Snapshot, error)
	Save(ctx context.Context, key string, snap *calendar.Snapshot) error
}

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func encode(format Format, snap *calendar.Snapshot) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(snap)
	case FormatJSON, "":
		return json.MarshalIndent(snap, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
}

func decode(format Format, data []byte) (*calendar.Snapshot, error) {
	var snap calendar.Snapshot
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &snap)
	case FormatJSON, "":
		err = json.Unmarshal(data, &snap)
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
