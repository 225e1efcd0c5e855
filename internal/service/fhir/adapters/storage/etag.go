package storage

import "strings"

// normalizeETag strips weak-ETag quoting so `W/"3"`, `"3"` and `3` all compare
// as version 3.
func normalizeETag(etag string) string {
	s := strings.TrimSpace(etag)
	s = strings.TrimPrefix(s, "W/")
	return strings.Trim(s, `"`)
}
