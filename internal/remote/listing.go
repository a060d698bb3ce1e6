package remote

import (
	"sort"
	"strings"
)

// buildListing derives the entries under dir from a flat set of file paths.
// A shallow listing reports each direct child once, folders as Tree; a deep
// one reports every nested folder and file. Entries are sorted by path.
func buildListing(paths []string, dir string, deep bool) []TreeEntry {
	seen := make(map[string]bool)
	var entries []TreeEntry
	add := func(p string, kind EntryKind) {
		if !seen[p] {
			seen[p] = true
			entries = append(entries, TreeEntry{Path: p, Kind: kind})
		}
	}

	for _, p := range paths {
		rel := p
		if dir != "" {
			if !strings.HasPrefix(p, dir+"/") {
				continue
			}
			rel = p[len(dir)+1:]
		}
		parts := strings.Split(rel, "/")
		if !deep {
			if len(parts) == 1 {
				add(p, Blob)
			} else {
				add(joinPath(dir, parts[0]), Tree)
			}
			continue
		}
		for i := 1; i < len(parts); i++ {
			add(joinPath(dir, strings.Join(parts[:i], "/")), Tree)
		}
		add(p, Blob)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
