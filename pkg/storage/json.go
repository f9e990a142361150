package storage

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// VolatileKeys change between fetches of an otherwise unchanged post
var VolatileKeys = []string{"embed_iframe", "updated"}

// StripKeys removes every member named in keys, at any depth, keeping the
// order of the remaining members
func StripKeys(raw []byte, keys ...string) ([]byte, error) {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}

	var paths []string
	collectPaths(gjson.ParseBytes(raw), "", drop, &paths)

	out := raw
	for i := len(paths) - 1; i >= 0; i-- {
		var err error
		out, err = sjson.DeleteBytes(out, paths[i])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func collectPaths(v gjson.Result, prefix string, drop map[string]bool, paths *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			path := joinPath(prefix, escapePath(key.String()))
			if drop[key.String()] {
				*paths = append(*paths, path)
			} else {
				collectPaths(value, path, drop, paths)
			}
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, value gjson.Result) bool {
			collectPaths(value, joinPath(prefix, strconv.Itoa(i)), drop, paths)
			i++
			return true
		})
	}
}

func joinPath(prefix, part string) string {
	if prefix == "" {
		return part
	}
	return prefix + "." + part
}

// escapePath backslash-escapes characters that carry meaning in a path
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var canonicalOptions = &pretty.Options{Width: 80, Indent: "  ", SortKeys: true}

// SameJSON reports whether a and b hold the same JSON value, ignoring
// member order and whitespace
func SameJSON(a, b []byte) bool {
	if !gjson.ValidBytes(a) || !gjson.ValidBytes(b) {
		return false
	}
	return bytes.Equal(canonical(a), canonical(b))
}

func canonical(raw []byte) []byte {
	return pretty.Ugly(pretty.PrettyOptions(raw, canonicalOptions))
}
