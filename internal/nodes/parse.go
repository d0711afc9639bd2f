package nodes

import (
	"fmt"
	"strings"
)

// StripFencedJSON extracts a JSON object from model output that may be
// wrapped in markdown code fences or preceded by prose. It strips
// ```json fences and scans for the first '{' that does not open a '{{'
// template pair.
func StripFencedJSON(text string) (string, error) {
	content := strings.TrimSpace(text)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := -1
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			if i+1 < len(content) && content[i+1] == '{' {
				i++
				continue
			}
			start = i
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in text")
	}
	return content[start:], nil
}
