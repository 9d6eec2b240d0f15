package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawBlock is a decoded block plus the declaration order of its config keys.
type rawBlock struct {
	fields     map[string]any
	configKeys []string
}

func decodeJSON(data []byte) ([]rawBlock, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("descriptor must be a list of blocks")
		}
		return nil, err
	}

	blocks := make([]rawBlock, 0, len(items))
	for i, item := range items {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("block %d is not an object", i)
		}
		block := rawBlock{fields: fields}

		if _, ok := fields["config"].(map[string]any); ok {
			var parts map[string]json.RawMessage
			if err := json.Unmarshal(item, &parts); err != nil {
				return nil, err
			}
			keys, err := orderedJSONKeys(parts["config"])
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", i, err)
			}
			block.configKeys = keys
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func orderedJSONKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("config must be an object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func decodeYAML(data []byte) ([]rawBlock, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("descriptor must be a list of blocks")
	}

	blocks := make([]rawBlock, 0, len(seq.Content))
	for i, node := range seq.Content {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("block %d is not a mapping (line %d)", i, node.Line)
		}
		var fields map[string]any
		if err := node.Decode(&fields); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		block := rawBlock{fields: fields}

		for j := 0; j+1 < len(node.Content); j += 2 {
			if node.Content[j].Value == "config" && node.Content[j+1].Kind == yaml.MappingNode {
				cfg := node.Content[j+1]
				for k := 0; k+1 < len(cfg.Content); k += 2 {
					block.configKeys = append(block.configKeys, cfg.Content[k].Value)
				}
			}
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
