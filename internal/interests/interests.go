// Package interests reads the user's topics of interest.
package interests

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrFileMissing reports that the configured interests file does not exist.
var ErrFileMissing = errors.New("interests file not found")

type yamlFile struct {
	Interests []string `yaml:"interests"`
}

// Load reads interests from a .yaml/.yml file ({interests: [...]}) or a text
// file with one topic per line. Lines starting with # are comments. A missing
// file yields ErrFileMissing.
func Load(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, fmt.Errorf("read interests file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(raw)
	default:
		return parseLines(raw), nil
	}
}

func parseYAML(raw []byte) ([]string, error) {
	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		var list []string
		if listErr := yaml.Unmarshal(raw, &list); listErr != nil {
			return nil, fmt.Errorf("parse interests yaml: %w", err)
		}
		file.Interests = list
	}
	return clean(file.Interests), nil
}

func parseLines(raw []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return clean(lines)
}

// clean trims topics and drops blanks and case-insensitive repeats.
func clean(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.Join(strings.Fields(topic), " ")
		if topic == "" {
			continue
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, topic)
	}
	return out
}
