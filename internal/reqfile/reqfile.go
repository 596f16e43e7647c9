// Package reqfile expands a requirements file into the package specs it
// lists, generalizing curdling's -r flag (a plain newline-delimited list)
// to also accept a YAML requirement list and a glob of multiple files, so
// a single -r flag can select several per-environment files at once.
package reqfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v2"
	"gopkg.in/yaml.v2"
)

// Expand reads pathOrGlob and returns the package specs it lists, in
// Requirement textual form, ready to pass to Requirement.Parse. pathOrGlob
// may be a single file path or a doublestar glob matching several; a path
// ending in .yml/.yaml is parsed as YAML (a top-level `requirements:`
// list), anything else as a plain file with one spec per line and "#"
// comments.
func Expand(pathOrGlob string) ([]string, error) {
	matches, err := doublestar.Glob(pathOrGlob)
	if err != nil {
		return nil, fmt.Errorf("error expanding requirements glob %q: %w", pathOrGlob, err)
	}
	if len(matches) == 0 {
		// Not a glob, or a glob matching nothing: fall back to treating it
		// as a literal path so a plain "-r requirements.txt" still works.
		matches = []string{pathOrGlob}
	}

	var specs []string
	for _, path := range matches {
		fileSpecs, err := expandFile(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, fileSpecs...)
	}
	return specs, nil
}

func expandFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading requirements file %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml") {
		return parseYAML(data)
	}
	return parsePlain(data), nil
}

func parsePlain(data []byte) []string {
	var specs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		specs = append(specs, line)
	}
	return specs
}

type yamlRequirements struct {
	Requirements []string `yaml:"requirements"`
}

func parseYAML(data []byte) ([]string, error) {
	var f yamlRequirements
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing requirements YAML: %w", err)
	}
	return f.Requirements, nil
}
