package config

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-directory/types"
)

// Parser resolves dotted paths ("cache.config.max_entries") against the raw
// YAML document.
type Parser struct {
	data map[string]interface{}
}

func NewParser(data map[string]interface{}) *Parser {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Parser{data: data}
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	value := p.navigateToPath(path)
	if value == nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	value := p.navigateToPath(path)
	if value == nil {
		return types.Errorf(types.ErrConfigNotFound, "path: %s", path)
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal config value")
	}

	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return types.Errorf(types.ErrConfigParseFailed, "path %s: %v", path, err)
	}

	return nil
}

// GetAllPaths lists every leaf path in the document, sorted.
func (p *Parser) GetAllPaths() []string {
	var paths []string
	collectPaths("", p.data, &paths)
	sort.Strings(paths)
	return paths
}

func collectPaths(prefix string, value interface{}, paths *[]string) {
	var children map[string]interface{}

	switch v := value.(type) {
	case map[string]interface{}:
		children = v
	case map[interface{}]interface{}:
		children = make(map[string]interface{}, len(v))
		for key, item := range v {
			if name, ok := key.(string); ok {
				children[name] = item
			}
		}
	default:
		if prefix != "" {
			*paths = append(*paths, prefix)
		}
		return
	}

	for key, item := range children {
		next := key
		if prefix != "" {
			next = prefix + "." + key
		}
		collectPaths(next, item, paths)
	}
}

func (p *Parser) navigateToPath(path string) interface{} {
	if path == "" {
		return p.data
	}

	parts := strings.Split(path, ".")
	var current interface{} = p.data

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			if val, exists := v[part]; exists {
				current = val
			} else {
				return nil
			}
		case map[interface{}]interface{}:
			if val, exists := v[part]; exists {
				current = val
			} else {
				return nil
			}
		default:
			return nil
		}

		if current == nil {
			return nil
		}
	}

	return current
}
