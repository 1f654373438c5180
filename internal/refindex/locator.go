package refindex

import (
	"regexp"
	"strings"
)

// LocatorPrefix is the path under which blobs are served.
const LocatorPrefix = "/files/"

var locatorPattern = regexp.MustCompile(`(?i)/files/([a-f0-9]{24})`)

// Locator returns the public locator for a blob id.
func Locator(id string) string {
	return LocatorPrefix + id
}

// ExtractBlobID returns the blob id embedded in a locator. Full URLs are
// accepted. It never fails; ok is false when no id is present.
func ExtractBlobID(locator string) (id string, ok bool) {
	m := locatorPattern.FindStringSubmatch(locator)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
