package masedb

import (
	"strconv"
	"strings"
)

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// resolve appends every value reachable from v through segs to out. A numeric segment indexes an array; any
// other segment applied to an array is applied to each of its document elements. Nothing is appended when the
// path cannot be resolved, which callers treat as "absent" (distinct from a resolved Null).
func resolve(v Value, segs []string, out []Value) []Value {
	if len(segs) == 0 {
		return append(out, v)
	}
	seg := segs[0]
	switch v.kind {
	case KindDocument:
		next, ok := v.doc.Field(seg)
		if !ok {
			return out
		}
		return resolve(next, segs[1:], out)
	case KindArray:
		if idx, ok := arrayIndex(seg); ok {
			if idx < len(v.arr) {
				return resolve(v.arr[idx], segs[1:], out)
			}
			return out
		}
		for _, elem := range v.arr {
			if elem.kind == KindDocument {
				out = resolve(elem, segs, out)
			}
		}
	}
	return out
}

func arrayIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func validPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "$") {
		return false
	}
	for _, seg := range splitPath(path) {
		if seg == "" {
			return false
		}
	}
	return true
}
