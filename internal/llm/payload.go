package llm

import (
	"errors"
	"strings"
)

// ErrNoObject indicates no JSON object could be located in the text.
var ErrNoObject = errors.New("no JSON object found in generated text")

// ExtractObject pulls the first top-level JSON object out of free-form
// generated text. Models habitually wrap JSON in markdown code fences or
// surround it with commentary; both are tolerated. The returned bytes are
// ready for json.Unmarshal.
func ExtractObject(text string) ([]byte, error) {
	text = stripFences(strings.TrimSpace(text))

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil, ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}

	return nil, ErrNoObject
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
