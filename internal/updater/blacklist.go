package updater

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadBlacklist reads the set of symbols excluded from every run. Accepted
// file forms: a JSON string array, a {"blacklist": [...]} object, or plain
// text with one symbol per line and # comments.
func LoadBlacklist(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}

	out := map[string]bool{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		var symbols []string
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &symbols); err != nil {
				return nil, fmt.Errorf("failed to parse blacklist: %w", err)
			}
		} else {
			var wrapped struct {
				Blacklist []string `json:"blacklist"`
			}
			if err := json.Unmarshal(trimmed, &wrapped); err != nil {
				return nil, fmt.Errorf("failed to parse blacklist: %w", err)
			}
			symbols = wrapped.Blacklist
		}
		for _, s := range symbols {
			out[strings.ToUpper(strings.TrimSpace(s))] = true
		}
		return out, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[strings.ToUpper(line)] = true
	}
	return out, scanner.Err()
}
