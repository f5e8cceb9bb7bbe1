package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	redacted       = "[REDACTED]"
	maxLoggedChars = 120
)

// A rule rewrites the value of any key containing one of its fragments.
// Rules are checked in order; the first match wins.
type rule struct {
	fragments []string
	apply     func(val interface{}) interface{}
}

var rules = []rule{
	{
		fragments: []string{"token", "authorization", "password", "secret", "cookie", "api_key", "apikey", "email", "dsn"},
		apply:     func(interface{}) interface{} { return redacted },
	},
	// Owners are pseudonymous in logs but stay correlatable.
	{
		fragments: []string{"user_id", "owner_id", "session_id"},
		apply:     func(v interface{}) interface{} { return hashValue(v) },
	},
	// Learner material and raw model output are long and personal.
	{
		fragments: []string{"source_content", "raw_output", "body", "prompt"},
		apply:     truncateValue,
	},
}

var (
	policyOnce    sync.Once
	redactEnabled bool
	hashSalt      string
)

// LOG_REDACTION_ENABLED=false turns the rules off for local debugging.
func loadPolicy() {
	policyOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			redactEnabled = false
		default:
			redactEnabled = true
		}
		hashSalt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
}

func sanitizeKVs(kv []interface{}) []interface{} {
	loadPolicy()
	if len(kv) == 0 || !redactEnabled {
		return kv
	}
	out := make([]interface{}, len(kv))
	for i := 0; i < len(kv); i += 2 {
		out[i] = kv[i]
		if i+1 < len(kv) {
			key := toString(kv[i])
			out[i] = key
			out[i+1] = sanitizeValue(strings.ToLower(key), kv[i+1])
		}
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	for _, r := range rules {
		for _, f := range r.fragments {
			if key != "" && strings.Contains(key, f) {
				return r.apply(val)
			}
		}
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(strings.ToLower(k), inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = sanitizeValue("", inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return redacted
		}
	}
	return val
}

func truncateValue(val interface{}) interface{} {
	s := toString(val)
	if len(s) <= maxLoggedChars {
		return s
	}
	return fmt.Sprintf("%s...(%d chars)", s[:maxLoggedChars], len(s))
}

func hashValue(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(hashSalt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
