package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey names the files a config file builds on. The value is a path or
// a list of paths, relative to the including file.
const includeKey = "$include"

// envPattern matches ${NAME} and ${NAME:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv substitutes ${NAME} references. Unset variables expand to the
// default after ":-", or to the empty string. Bare $NAME is left alone so that
// values such as bcrypt hashes survive.
func expandEnv(data string) string {
	return envPattern.ReplaceAllStringFunc(data, func(ref string) string {
		m := envPattern.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}

// readConfigFile reads path and its includes into one Config. Included files
// are applied first, so the including file wins on every key it sets.
func readConfigFile(path string) (*Config, error) {
	var r treeReader
	tree, err := r.read(path)
	if err != nil {
		return nil, err
	}
	return decodeTree(tree)
}

// treeReader follows includes. open holds the chain of files being read.
type treeReader struct {
	open []string
}

func (r *treeReader) read(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if slices.Contains(r.open, abs) {
		return nil, fmt.Errorf("config include cycle: %s -> %s", strings.Join(r.open, " -> "), abs)
	}
	r.open = append(r.open, abs)
	defer func() { r.open = r.open[:len(r.open)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(filepath.Ext(abs), []byte(expandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	includes, err := takeIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	tree := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		base, err := r.read(inc)
		if err != nil {
			return nil, err
		}
		overlay(tree, base)
	}
	overlay(tree, doc)
	return tree, nil
}

// parseDocument decodes one YAML or JSON5 document by file extension.
func parseDocument(ext string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case ".yaml", ".yml", "":
		if err := decodeSingleYAML(data, &doc, false); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// takeIncludes removes the include directive from doc and returns its paths.
func takeIncludes(doc map[string]any) ([]string, error) {
	value, ok := doc[includeKey]
	delete(doc, includeKey)
	if !ok || value == nil {
		return nil, nil
	}
	if path, ok := value.(string); ok {
		value = []any{path}
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a path or a list of paths, got %T", includeKey, value)
	}
	var paths []string
	for _, entry := range list {
		path, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings, got %T", includeKey, entry)
		}
		if strings.TrimSpace(path) != "" {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// overlay writes src over dst, merging nested sections key by key.
func overlay(dst, src map[string]any) {
	for key, value := range src {
		section, isSection := value.(map[string]any)
		existing, hasSection := dst[key].(map[string]any)
		if isSection && hasSection {
			overlay(existing, section)
			continue
		}
		dst[key] = value
	}
}

// decodeTree maps the merged tree onto Config, rejecting unknown keys.
func decodeTree(tree map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	if err := decodeSingleYAML(payload, &cfg, true); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func decodeSingleYAML(data []byte, out any, strict bool) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(strict)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("expected a single document")
	}
	return nil
}
