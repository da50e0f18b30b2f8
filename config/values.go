package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Values are named YAML fragments declared under "values:" either inline or
// in *.values.yaml files. A scalar tagged !name is replaced by the fragment,
// e.g. "jdist: !slit_jdist". Included modules inherit the values of their
// parent.

func copyValueMap(src map[string]*yaml.Node) map[string]*yaml.Node {
	dst := make(map[string]*yaml.Node, len(src))
	for key, node := range src {
		dst[key] = cloneNode(node)
	}
	return dst
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	clone := *n
	if len(n.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			clone.Content[i] = cloneNode(child)
		}
	}
	if n.Alias != nil {
		clone.Alias = cloneNode(n.Alias)
	}
	return &clone
}

func loadValuesIntoMap(root *yaml.Node, baseDir string, values map[string]*yaml.Node) error {
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if key == nil || key.Kind != yaml.ScalarNode || strings.TrimSpace(key.Value) != "values" {
			continue
		}
		seq := root.Content[i+1]
		if seq == nil {
			continue
		}
		if seq.Kind != yaml.SequenceNode {
			return fmt.Errorf("values block must be a sequence")
		}
		for _, item := range seq.Content {
			if err := loadValuesEntry(item, baseDir, values); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadValuesEntry(item *yaml.Node, baseDir string, values map[string]*yaml.Node) error {
	if item == nil {
		return nil
	}
	switch item.Kind {
	case yaml.ScalarNode:
		var ref string
		if err := item.Decode(&ref); err != nil {
			return fmt.Errorf("decode values entry: %w", err)
		}
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil
		}
		loaded, err := loadValueFile(resolveRelative(baseDir, ref))
		if err != nil {
			return fmt.Errorf("load values %s: %w", ref, err)
		}
		for name, node := range loaded {
			values[name] = node
		}
	case yaml.MappingNode:
		for name, node := range valuesFromMapping(item) {
			values[name] = node
		}
	default:
		return fmt.Errorf("values entry at line %d must be a string path or mapping", item.Line)
	}
	return nil
}

func isValuesFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".values.yaml") || strings.HasSuffix(lower, ".values.yml")
}

func loadValueFile(path string) (map[string]*yaml.Node, error) {
	if !isValuesFile(filepath.Base(path)) {
		return nil, fmt.Errorf("values file %s must end with .values.yaml or .values.yml", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, err
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, fmt.Errorf("values file %s is empty", path)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("values file %s must contain a mapping", path)
	}
	return valuesFromMapping(root), nil
}

func valuesFromMapping(node *yaml.Node) map[string]*yaml.Node {
	result := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		if keyNode == nil || keyNode.Kind != yaml.ScalarNode {
			continue
		}
		if name := strings.TrimSpace(keyNode.Value); name != "" {
			result[name] = cloneNode(node.Content[i+1])
		}
	}
	return result
}

func resolveValueTags(node *yaml.Node, values map[string]*yaml.Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode, yaml.MappingNode:
		for _, child := range node.Content {
			if err := resolveValueTags(child, values); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if !strings.HasPrefix(node.Tag, "!") || strings.HasPrefix(node.Tag, "!!") {
			return nil
		}
		key := strings.TrimPrefix(node.Tag, "!")
		if key == "" {
			return fmt.Errorf("invalid value reference at line %d", node.Line)
		}
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("unknown value reference %q at line %d", key, node.Line)
		}
		replacement := cloneNode(value)
		if replacement == nil {
			return fmt.Errorf("value %q resolved to nil", key)
		}
		*node = *replacement
	}
	return nil
}
