// Package browser turns a flat object-storage listing into a navigable folder
// view and tracks navigation, batch actions and file previews for one bucket.
package browser

import (
	"strings"
	"time"
)

const (
	// ParentID identifies the synthetic "go up" entry.
	ParentID = ".."
	// RootID is the breadcrumb marker for the bucket root.
	RootID = "/"
	// SentinelName is the zero-byte object that keeps an empty folder visible.
	SentinelName = ".keep"
	// RootName labels the root breadcrumb.
	RootName = "Raíz"

	separator = "/"
)

// Entry is one row of a synthesized listing. Size is only meaningful for
// files; directories carry the modification time of the newest object seen
// beneath them.
type Entry struct {
	ID           string
	Name         string
	IsDir        bool
	Size         int64
	LastModified time.Time
}

// IsParent reports whether e is the synthetic "go up" entry.
func (e Entry) IsParent() bool {
	return e.ID == ParentID
}

// Breadcrumb is one link of the path chain shown above the listing.
type Breadcrumb struct {
	Prefix string
	Name   string
}

// Breadcrumbs builds the chain for prefix. The root crumb always comes first.
func Breadcrumbs(prefix string) []Breadcrumb {
	chain := []Breadcrumb{{Prefix: "", Name: RootName}}
	path := ""
	for _, part := range strings.Split(prefix, separator) {
		if part == "" {
			continue
		}
		path += part + separator
		chain = append(chain, Breadcrumb{Prefix: path, Name: part})
	}
	return chain
}

// NormalizePrefix strips leading separators and guarantees a trailing one for
// non-root prefixes.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, separator)
	if prefix != "" && !strings.HasSuffix(prefix, separator) {
		prefix += separator
	}
	return prefix
}

// ParentPrefix drops the last segment of prefix. The parent of a first-level
// folder is the root.
func ParentPrefix(prefix string) string {
	parts := strings.Split(NormalizePrefix(prefix), separator)
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], separator) + separator
}

// SentinelKey returns the placeholder object key for a directory entry id.
func SentinelKey(dirID string) string {
	return NormalizePrefix(dirID) + SentinelName
}

// Extension returns the lower-cased text after the last dot of name, or ""
// when there is none.
func Extension(name string) string {
	if i := strings.LastIndex(name, separator); i >= 0 {
		name = name[i+1:]
	}
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
