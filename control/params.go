// control/params.go
// Author: momentics <momentics@gmail.com>
//
// Module parameters given as key=value words, e.g. from a command line:
//
//	delay_ns=5000 label=dev0 ids=1,2,3

package control

import (
	"strconv"
	"strings"

	"github.com/momentics/hioload-chrdev/api"
)

func validParamName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// parseParamValue types a single value: quoted string, integer (any base
// strconv accepts), comma-separated integer list, or bare string.
func parseParamValue(v string) (any, bool) {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1], true
	}
	if i, err := strconv.ParseInt(v, 0, 64); err == nil {
		return i, true
	}
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		arr := make([]int64, 0, len(parts))
		for _, p := range parts {
			i, err := strconv.ParseInt(strings.TrimSpace(p), 0, 64)
			if err != nil {
				return nil, false
			}
			arr = append(arr, i)
		}
		return arr, true
	}
	return v, true
}

// ParseParams parses words into typed values: int64, []int64 or string.
// Later words override earlier ones.
func ParseParams(words []string) (map[string]any, error) {
	out := make(map[string]any, len(words))
	for _, w := range words {
		key, val, ok := strings.Cut(w, "=")
		if !ok || !validParamName(key) {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "malformed parameter").WithContext("param", w)
		}
		v, ok := parseParamValue(val)
		if !ok {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "bad integer array").WithContext("param", w)
		}
		out[key] = v
	}
	return out, nil
}
