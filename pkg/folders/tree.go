// Package folders models the remote folder hierarchy for one sync pass.
// The tree is rebuilt from the folder-listing payload on every pass and
// never persisted.
package folders

import (
	"github.com/grafikarchiv/grafikarchiv/pkg/datawrapper"
)

// Node is one folder in the team hierarchy.
type Node struct {
	ID         string
	Name       string
	ParentID   string
	ParentName string
	Children   []*Node
	ChartIDs   []string
}

// ChartRef associates a chart with the folder it was listed in.
type ChartRef struct {
	ChartID        string
	Title          string
	FolderID       string
	FolderName     string
	CreatedAt      string
	LastModifiedAt string
}

// Tree is the assembled team-scoped folder hierarchy plus the flat list of
// chart associations found during traversal.
type Tree struct {
	Roots []*Node

	nodesByName map[string]*Node
	refs        []ChartRef
	seenCharts  map[string]struct{}
}

// Build assembles a Tree from a folder-listing payload. Only team-scoped
// top-level entries are traversed; user folders are skipped entirely.
// Missing folder or chart lists at any depth are treated as empty, and a
// chart listed in more than one folder keeps its first association.
func Build(list *datawrapper.FolderList) *Tree {
	t := &Tree{
		nodesByName: map[string]*Node{},
		seenCharts:  map[string]struct{}{},
	}
	if list == nil {
		return t
	}

	for _, item := range list.List {
		if item.Type != datawrapper.FolderTypeTeam {
			continue
		}
		root := t.addFolder(item, nil)
		if root != nil {
			t.Roots = append(t.Roots, root)
		}
	}

	return t
}

func (t *Tree) addFolder(folder *datawrapper.Folder, parent *Node) *Node {
	if folder == nil || folder.Name == "" || folder.ID == "" {
		return nil
	}

	node := &Node{
		ID:   string(folder.ID),
		Name: folder.Name,
	}
	if parent != nil {
		node.ParentID = parent.ID
		node.ParentName = parent.Name
	}

	// First sighting wins for duplicate names, so ancestry lookups are
	// deterministic given the same payload.
	if _, ok := t.nodesByName[node.Name]; !ok {
		t.nodesByName[node.Name] = node
	}

	for _, chart := range folder.Charts {
		if chart == nil || chart.ID == "" {
			continue
		}
		if _, ok := t.seenCharts[chart.ID]; ok {
			continue
		}
		t.seenCharts[chart.ID] = struct{}{}
		node.ChartIDs = append(node.ChartIDs, chart.ID)
		t.refs = append(t.refs, ChartRef{
			ChartID:        chart.ID,
			Title:          chart.Title,
			FolderID:       node.ID,
			FolderName:     node.Name,
			CreatedAt:      chart.CreatedAt,
			LastModifiedAt: chart.LastModifiedAt,
		})
	}

	for _, sub := range folder.Folders {
		child := t.addFolder(sub, node)
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}

	return node
}

// IsEmpty reports whether the traversal produced nothing, which the caller
// must treat as "remote unavailable this tick", never as a mass deletion.
func (t *Tree) IsEmpty() bool {
	return len(t.Roots) == 0 || len(t.refs) == 0
}

// ChartRefs returns the chart associations with every excluded folder, and
// transitively all of its descendants, removed from the candidate set.
func (t *Tree) ChartRefs(excludedNames []string) []ChartRef {
	excluded := map[string]struct{}{}
	queue := []*Node{}
	for _, name := range excludedNames {
		if node, ok := t.nodesByName[name]; ok {
			excluded[name] = struct{}{}
			queue = append(queue, node)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, child := range node.Children {
			if _, ok := excluded[child.Name]; ok {
				continue
			}
			excluded[child.Name] = struct{}{}
			queue = append(queue, child)
		}
	}

	refs := make([]ChartRef, 0, len(t.refs))
	for _, ref := range t.refs {
		if _, ok := excluded[ref.FolderName]; ok {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// Lookup returns the first-seen folder node with the given name.
func (t *Tree) Lookup(name string) (*Node, bool) {
	node, ok := t.nodesByName[name]
	return node, ok
}
