package resolver

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadMapping reads the symbol to CoinGecko id mapping file. Both the
// wrapped form {"mapping": {...}} and a flat object are accepted.
func LoadMapping(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var wrapped struct {
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Mapping) > 0 {
		return wrapped.Mapping, nil
	}

	flat := map[string]string{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	return flat, nil
}
