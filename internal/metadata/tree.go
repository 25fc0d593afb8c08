package metadata

import (
	"context"

	"github.com/vre-charite/service-approval/internal/models"
)

// EntityDescriptor is one node of a flattened selection. ParentGeid is the
// request-local parent within the traversal, nil for the explicitly
// requested top-level nodes, whatever their real-world location.
type EntityDescriptor struct {
	Node
	ParentGeid *string
}

// TreeBuilder flattens a requested set of top-level nodes into the ordered
// entity list a request persists.
type TreeBuilder struct {
	source Source
}

// NewTreeBuilder creates a TreeBuilder over the given source.
func NewTreeBuilder(source Source) *TreeBuilder {
	return &TreeBuilder{source: source}
}

// Expand resolves every requested geid and walks folders down to their full
// non-archived descendant set. The result is ordered so a parent always
// precedes its children. Requested geids that resolve to the same node are
// not deduplicated; each produces an independent descendant set. Any
// unresolved top-level geid aborts the whole expansion.
func (b *TreeBuilder) Expand(ctx context.Context, topLevelGeids []string) ([]EntityDescriptor, error) {
	nodes, err := b.source.BulkGet(ctx, topLevelGeids)
	if err != nil {
		return nil, err
	}

	byGeid := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		byGeid[node.Geid] = node
	}

	var out []EntityDescriptor
	for _, geid := range topLevelGeids {
		node, ok := byGeid[geid]
		if !ok {
			return nil, models.NewNotFoundError("Node", geid)
		}

		out = append(out, EntityDescriptor{Node: node})
		if node.IsFile() {
			continue
		}

		descendants, err := b.expandFolder(ctx, node.Geid)
		if err != nil {
			return nil, err
		}
		out = append(out, descendants...)
	}
	return out, nil
}

// expandFolder walks one folder with an explicit work stack so arbitrarily
// deep hierarchies cannot exhaust the goroutine stack. Appending a child
// only after its parent keeps the parent-before-child ordering.
func (b *TreeBuilder) expandFolder(ctx context.Context, rootGeid string) ([]EntityDescriptor, error) {
	var out []EntityDescriptor

	stack := []string{rootGeid}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := b.source.Children(ctx, parent)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			parentGeid := parent
			out = append(out, EntityDescriptor{Node: child, ParentGeid: &parentGeid})
			if !child.IsFile() {
				stack = append(stack, child.Geid)
			}
		}
	}
	return out, nil
}
