package settings

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout accepted by LoadSeedFile:
//
//	roles:
//	  - role: Pharmacist
//	    capabilities: [note_add]
type seedFile struct {
	Roles []RoleSetting `yaml:"roles"`
}

// ParseSeedYAML decodes role settings from YAML and validates each entry.
func ParseSeedYAML(data []byte) ([]RoleSetting, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("settings seed: document is empty")
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("settings seed: decode: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("settings seed: no roles defined")
	}
	seen := make(map[string]bool, len(f.Roles))
	for i := range f.Roles {
		if err := validateSetting(&f.Roles[i]); err != nil {
			return nil, fmt.Errorf("settings seed: roles[%d]: %w", i, err)
		}
		if seen[f.Roles[i].RoleName] {
			return nil, fmt.Errorf("settings seed: duplicate role %q", f.Roles[i].RoleName)
		}
		seen[f.Roles[i].RoleName] = true
	}
	return f.Roles, nil
}

// LoadSeedFile reads role settings from a YAML file.
func LoadSeedFile(path string) ([]RoleSetting, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings seed: read %s: %w", path, err)
	}
	return ParseSeedYAML(content)
}
