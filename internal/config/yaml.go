package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var errEmptyConfig = errors.New("config is empty")

// configFormat picks the decoder: the extension decides for .json, .yaml and
// .yml; anything else is JSON when it starts with '{', YAML otherwise.
func configFormat(name string, raw []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return "json"
	}
	return "yaml"
}

// toJSON returns the config as JSON so both formats go through the strict
// decoder. A YAML stream must hold exactly one document.
func toJSON(name string, raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyConfig
	}
	if configFormat(name, raw) == "json" {
		return raw, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	var doc any
	if err := dec.Decode(&doc); errors.Is(err, io.EOF) {
		return nil, errEmptyConfig
	} else if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return nil, errEmptyConfig
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return nil, fmt.Errorf("yaml: %s holds more than one document", name)
	}
	j, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return j, nil
}

// stringKeys rewrites YAML maps with non-string keys (e.g. numeric ids)
// into JSON-compatible maps.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	}
	return in
}
