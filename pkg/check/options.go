// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package check

// Options holds type-specific check parameters as decoded from the
// configuration document. Values of an unexpected type yield the default.
type Options map[string]interface{}

// GetString returns the named string option or def.
func (o Options) GetString(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// GetBool returns the named bool option or def.
func (o Options) GetBool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// GetInt returns the named integer option or def. JSON numbers decode as
// float64 and are accepted when integral.
func (o Options) GetInt(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case float64:
		if v == float64(int64(v)) {
			return int(v)
		}
	}
	return def
}

// GetStringSlice returns the named list-of-strings option. Entries of
// other types are dropped.
func (o Options) GetStringSlice(key string) []string {
	switch raw := o[key].(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
