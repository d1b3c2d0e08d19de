package vm

import "strings"

// sanitizeUTF8 decodes raw bytes as UTF-8, substituting the replacement
// character for any invalid sequences, matching Python's
// `bytes.decode("utf-8", "replace")` behavior for guest strings.
func sanitizeUTF8(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}
