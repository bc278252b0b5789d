package query

// JoinPaths implements spec.md §4.2's Branch 2 path-joining rule over raw
// bytes: a "" or "." component identifies the other side unchanged;
// otherwise the two are joined with a single "/". Paths are not required
// to be valid UTF-8, so this operates on []byte throughout rather than
// string.
func JoinPaths(prefix, suffix []byte) []byte {
	if isEmptyPathComponent(prefix) {
		return suffix
	}
	if isEmptyPathComponent(suffix) {
		return prefix
	}
	out := make([]byte, 0, len(prefix)+1+len(suffix))
	out = append(out, prefix...)
	out = append(out, '/')
	out = append(out, suffix...)
	return out
}

func isEmptyPathComponent(p []byte) bool {
	return len(p) == 0 || (len(p) == 1 && p[0] == '.')
}
