package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// tree renders cfg as the generic JSON object that dot paths walk.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dot path such as "channels.network.port".
// Numeric segments index into arrays.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}

	var node any = m
	for _, seg := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("invalid array index %q in %s", seg, path)
			}
			node = v[i]
		default:
			return nil, fmt.Errorf("%s: %q is not an object", path, seg)
		}
	}
	return node, nil
}

// SetByPath assigns value at a dot path. String values are coerced to bools,
// numbers or JSON arrays/objects when they parse as such. Paths that name no
// config field are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	segs := strings.Split(path, ".")
	obj := m
	for _, seg := range segs[:len(segs)-1] {
		switch child := obj[seg].(type) {
		case map[string]any:
			obj = child
		case nil:
			// Omitted (zero-valued) sections come back empty.
			fresh := map[string]any{}
			obj[seg] = fresh
			obj = fresh
		default:
			return fmt.Errorf("%s: %q is not an object", path, seg)
		}
	}
	obj[segs[len(segs)-1]] = coerce(value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var updated Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = updated
	return nil
}

// coerce turns CLI strings into the JSON type they spell.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var structured any
		if json.Unmarshal([]byte(s), &structured) == nil {
			return structured
		}
	}
	return s
}

// Sanitize returns a deep copy of cfg with every credential masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}

	for _, secret := range []*string{
		&out.LLM.APIKey,
		&out.Channels.Discord.Token,
		&out.Channels.Twitter.BearerToken,
		&out.Channels.Telegram.Token,
		&out.Channels.Slack.BotToken,
		&out.Channels.Slack.AppToken,
	} {
		*secret = mask(*secret)
	}
	for name, pc := range out.LLM.Providers {
		pc.APIKey = mask(pc.APIKey)
		out.LLM.Providers[name] = pc
	}
	return &out
}

// mask keeps the first and last four characters of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// ListPaths flattens cfg into dot paths and their values.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

// SortedPaths returns the keys of ListPaths in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok && len(child) > 0 {
			flatten(p, child, out)
			continue
		}
		out[p] = v
	}
}
