// Package scenario handles parsing and representation of smoke test scenarios.
package scenario

import (
	"path/filepath"
	"slices"
	"strings"
)

// Scenario is an ordered list of steps exercising one user flow.
type Scenario struct {
	SourcePath string // Path to the source file, empty for built-in scenarios
	Config     Config // Scenario configuration (name, tags, env)
	Steps      []Step // Steps to execute
}

// Config represents scenario-level configuration.
type Config struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Tags        []string          `yaml:"tags"`
	Env         map[string]string `yaml:"env"`
}

// Name returns the configured name, falling back to the file name.
func (s *Scenario) Name() string {
	if s.Config.Name != "" {
		return s.Config.Name
	}
	if s.SourcePath != "" {
		base := filepath.Base(s.SourcePath)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return "unnamed"
}

// ShouldInclude checks if a scenario matches tag filters.
func ShouldInclude(s *Scenario, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range s.Config.Tags {
			if slices.Contains(includeTags, tag) {
				hasTag = true
				break
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range s.Config.Tags {
		if slices.Contains(excludeTags, tag) {
			return false
		}
	}

	return true
}
