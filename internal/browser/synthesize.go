package browser

import (
	"strings"

	"github.com/damacus/iron-archivos/internal/storage"
)

// Synthesize groups a flat listing of keys under prefix into one level of
// entries: objects directly below prefix become files, deeper objects collapse
// into one directory per first path segment. Sentinel objects only make their
// folder visible and are never listed themselves.
func Synthesize(prefix string, files []storage.File) []Entry {
	var entries []Entry
	dirIndex := make(map[string]int)
	seenFiles := make(map[string]bool)

	for _, f := range files {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		rel := f.Name[len(prefix):]
		if rel == "" {
			continue
		}

		if i := strings.Index(rel, separator); i >= 0 {
			first := rel[:i]
			if first == "" {
				continue
			}
			if idx, ok := dirIndex[first]; ok {
				entries[idx].LastModified = f.Updated
				continue
			}
			dirIndex[first] = len(entries)
			entries = append(entries, Entry{
				ID:           prefix + first + separator,
				Name:         first,
				IsDir:        true,
				LastModified: f.Updated,
			})
			continue
		}

		if rel == SentinelName || seenFiles[f.Name] {
			continue
		}
		seenFiles[f.Name] = true
		entries = append(entries, Entry{
			ID:           f.Name,
			Name:         rel,
			Size:         f.Size,
			LastModified: f.Updated,
		})
	}

	if prefix != "" {
		entries = append([]Entry{{ID: ParentID, Name: ParentID, IsDir: true}}, entries...)
	}
	return entries
}
