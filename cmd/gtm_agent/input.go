package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// readFile returns the contents of path, or of stdin when path is "-".
func readFile(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return data, nil
}

// readProductContext parses wizard form data.
func readProductContext(stdin io.Reader, path string) (types.ProductContext, error) {
	var pc types.ProductContext
	data, err := readFile(stdin, path)
	if err != nil {
		return pc, err
	}
	if err := json.Unmarshal(data, &pc); err != nil {
		return pc, fmt.Errorf("failed to parse product context: %w", err)
	}
	return pc, nil
}
