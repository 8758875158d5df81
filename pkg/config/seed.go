package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// LoadSeed reads a YAML role and user seed. An empty path returns the
// built-in seed. Unknown keys are rejected.
func LoadSeed(path string) (rbac.Seed, error) {
	if path == "" {
		return rbac.DefaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rbac.Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return rbac.Seed{}, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seed, nil
}

// ParseSeed decodes a YAML seed document
func ParseSeed(data []byte) (rbac.Seed, error) {
	var seed rbac.Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return rbac.Seed{}, fmt.Errorf("seed is empty")
		}
		return rbac.Seed{}, fmt.Errorf("failed to parse seed: %w", err)
	}
	if len(seed.Roles) == 0 && len(seed.Users) == 0 {
		return rbac.Seed{}, fmt.Errorf("seed defines no roles and no users")
	}
	return seed, nil
}
