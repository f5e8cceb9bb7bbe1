package aigateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON document inside a model reply.
// Models often wrap JSON in ```json fences or put a sentence in front of it.
func ExtractJSON(text string) (string, error) {
	raw := text
	text = StripFences(strings.TrimSpace(text))
	if text == "" {
		return "", malformed(raw, errors.New("empty reply"))
	}
	if !json.Valid([]byte(text)) {
		inner, ok := outermostJSON(text)
		if !ok {
			return "", malformed(raw, errors.New("no JSON object or array found"))
		}
		text = inner
	}
	if !json.Valid([]byte(text)) {
		var probe any
		err := json.Unmarshal([]byte(text), &probe)
		return "", malformed(raw, err)
	}
	return text, nil
}

// StripFences removes a surrounding ``` code fence and its language tag.
func StripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "```"); i >= 0 && strings.Count(text, "```") >= 2 {
			text = text[i:]
		} else {
			return text
		}
	}
	text = strings.TrimPrefix(text, "```")
	// Skip a language tag such as json or JSON on the opening line.
	if nl := strings.Index(text, "\n"); nl >= 0 {
		first := strings.TrimSpace(text[:nl])
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[nl+1:]
		}
	}
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// outermostJSON slices from the first opening brace or bracket to its last closer.
func outermostJSON(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(text[start : end+1]), true
}

// DecodeDataURL decodes a data:<mime>;base64,<payload> image reference.
func DecodeDataURL(ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	comma := strings.Index(ref, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("data url without payload")
	}
	meta := ref[len("data:"):comma]
	payload := ref[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("data url is not base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decode data url: %w", err)
		}
	}
	return b, mime, nil
}
