package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

func decodeYAML(content string) (filePatch, map[string]any, error) {
	var payload filePatch
	if err := decodeSingleYAML(content, &payload); err != nil {
		return filePatch{}, nil, err
	}

	var raw map[string]any
	if err := decodeSingleYAML(content, &raw); err != nil {
		return filePatch{}, nil, err
	}
	return payload, raw, nil
}

func decodeSingleYAML(content string, out any) error {
	decoder := yaml.NewDecoder(strings.NewReader(content))
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("yaml: %w", err)
	}

	var extra yaml.Node
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return fmt.Errorf("yaml: %w", err)
		}
		return errors.New("multiple YAML documents are not allowed")
	}
	return nil
}
