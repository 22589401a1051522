package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// sortedKeys lists the keys of f named in order first, then the rest alphabetically.
func sortedKeys(f fields, order []string) []string {
	keys := make([]string, 0, len(f))
	placed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := f[k]; ok && !placed[k] {
			keys = append(keys, k)
			placed[k] = true
		}
	}
	tail := len(keys)
	for k := range f {
		if !placed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[tail:])
	return keys
}

func encodeJSON(f fields, order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range sortedKeys(f, order) {
		val, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

func encodeKV(f fields, order []string) []byte {
	var b strings.Builder
	for i, k := range sortedKeys(f, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(f[k]))
	}
	return []byte(b.String())
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = validUTF8(x)
	case bool:
		s = strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
