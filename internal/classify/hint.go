package classify

import (
	"path"

	"github.com/src-d/enry/v2"
)

// LanguageHint returns enry's language detection for a file. It supplements
// the signature tables (comment-prefix selection, logging) and never feeds
// the deterministic score.
func LanguageHint(filePath string, content []byte) string {
	return enry.GetLanguage(path.Base(filePath), content)
}

// IsVendorPath reports whether the path belongs to vendored or generated
// code that discovery should skip.
func IsVendorPath(filePath string) bool {
	return enry.IsVendor(filePath)
}
