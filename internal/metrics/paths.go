package metrics

import "strings"

// NormalizePath collapses per-report path segments so metric label
// cardinality stays bounded.
func NormalizePath(path string) string {
	const reportsPrefix = "/api/admin/reports/"
	if strings.HasPrefix(path, reportsPrefix) {
		rest := path[len(reportsPrefix):]
		if idx := strings.Index(rest, "/"); idx != -1 {
			return reportsPrefix + ":id" + rest[idx:]
		}
		return reportsPrefix + ":id"
	}
	return path
}
