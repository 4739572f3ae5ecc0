package folders

import "strings"

// InheritTags accumulates ancestor folder names as classification tags: the
// chart's own tags first, then ancestors nearest-first, walking up by name
// until the parent is missing or the root folder is reached. The root name
// itself is never added. A visited set terminates on malformed payloads
// where folder parentage loops.
func (t *Tree) InheritTags(ownTags string, folderName, rootName string) string {
	tags := []string{}
	seen := map[string]struct{}{}
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, tag := range strings.Split(ownTags, ",") {
		add(tag)
	}

	visited := map[string]struct{}{}
	for folderName != "" && folderName != rootName {
		if _, ok := visited[folderName]; ok {
			break
		}
		visited[folderName] = struct{}{}

		add(folderName)

		node, ok := t.Lookup(folderName)
		if !ok {
			break
		}
		folderName = node.ParentName
	}

	return strings.Join(tags, ", ")
}
