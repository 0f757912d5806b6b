package messages

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source resolves a message code to text.
type Source interface {
	Message(code string, args []interface{}, defaultMessage string) string
}

// Bundle is an in-memory Source keyed by message code.
// Patterns reference arguments as {0}, {1}, ...
type Bundle struct {
	mu       sync.RWMutex
	messages map[string]string
}

// NewBundle creates a bundle holding a copy of messages.
func NewBundle(messages map[string]string) *Bundle {
	b := &Bundle{messages: make(map[string]string, len(messages))}
	for code, pattern := range messages {
		b.messages[code] = pattern
	}
	return b
}

// LoadYAML reads a flat or nested YAML mapping. Nested keys are joined with dots,
// so "Size: {customer: {name: ...}}" defines the code Size.customer.name.
func LoadYAML(r io.Reader) (*Bundle, error) {
	var raw map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return NewBundle(nil), nil
		}
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	b := NewBundle(nil)
	if err := flatten("", raw, b.messages); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadFile reads a YAML message bundle from disk.
func LoadFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open messages file: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) error {
	for key, value := range node {
		code := key
		if prefix != "" {
			code = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			if err := flatten(code, v, out); err != nil {
				return err
			}
		case string:
			out[code] = v
		case nil:
			out[code] = ""
		case int, int64, float64, bool:
			out[code] = fmt.Sprint(v)
		default:
			return fmt.Errorf("message %s must be a string, got %T", code, value)
		}
	}
	return nil
}

// Set adds or replaces a message pattern.
func (b *Bundle) Set(code, pattern string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[code] = pattern
}

// Message renders the pattern for code, falling back to defaultMessage and then to the code itself.
func (b *Bundle) Message(code string, args []interface{}, defaultMessage string) string {
	b.mu.RLock()
	pattern, ok := b.messages[code]
	b.mu.RUnlock()

	if !ok {
		if defaultMessage == "" {
			return code
		}
		pattern = defaultMessage
	}
	return Format(pattern, args)
}

// Resolve tries codes in order and renders the first one the source knows.
// The last code is used with defaultMessage when none is found.
func Resolve(source Source, codes []string, args []interface{}, defaultMessage string) string {
	if len(codes) == 0 {
		return Format(defaultMessage, args)
	}
	for _, code := range codes[:len(codes)-1] {
		if msg := source.Message(code, args, ""); msg != code {
			return msg
		}
	}
	return source.Message(codes[len(codes)-1], args, defaultMessage)
}

var placeholder = regexp.MustCompile(`\{(\d+)\}`)

// Format replaces {n} with the n-th argument. Placeholders without an argument are kept.
func Format(pattern string, args []interface{}) string {
	if len(args) == 0 {
		return pattern
	}
	return placeholder.ReplaceAllStringFunc(pattern, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || index >= len(args) {
			return match
		}
		if args[index] == nil {
			return "null"
		}
		return fmt.Sprint(args[index])
	})
}
