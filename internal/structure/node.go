// Package structure turns a normalized AsciiDoc-style document into the
// publication tree: Collection > Book > Chapter > Section.
package structure

// Kind is the variant of a tree node.
type Kind int

const (
	KindCollection Kind = iota
	KindBook
	KindChapter
	KindSection
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindBook:
		return "book"
	case KindChapter:
		return "chapter"
	case KindSection:
		return "section"
	default:
		return "unknown"
	}
}

// PreambleTitle is the heading given to inserted preamble chapters and to
// sections opened for body text that precedes the first section heading.
const PreambleTitle = "Preamble"

// Node is one vertex of the publication tree. Sections are always leaves and
// carry Body; every other kind carries Children.
type Node struct {
	Kind     Kind
	Title    string
	Level    int
	Ordinal  int // 1-based position among siblings
	Children []*Node
	Body     string

	// Synthetic marks nodes that have no heading in the source.
	Synthetic bool
	// Preamble marks inserted preamble chapters.
	Preamble bool
	// Line is the 1-based source line of the heading, 0 for synthetic nodes.
	Line int

	// Filled by tag derivation.
	DTag string
	Tags [][]string

	lines []string
}

// IsIndex reports whether the node compiles to an index record.
func (n *Node) IsIndex() bool { return n.Kind != KindSection }

func (n *Node) appendChild(c *Node) {
	c.Ordinal = len(n.Children) + 1
	n.Children = append(n.Children, c)
}

func (n *Node) lastChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// Walk visits n and its descendants depth-first, parents before children.
// The path holds the ancestors of the visited node, root first.
func (n *Node) Walk(fn func(node *Node, path []*Node) error) error {
	return n.walk(nil, fn)
}

func (n *Node) walk(path []*Node, fn func(*Node, []*Node) error) error {
	if err := fn(n, path); err != nil {
		return err
	}
	childPath := append(path[:len(path):len(path)], n)
	for _, c := range n.Children {
		if err := c.walk(childPath, fn); err != nil {
			return err
		}
	}
	return nil
}

// PostOrder returns every node with children before their parent, siblings in
// document order.
func (n *Node) PostOrder() []*Node {
	var out []*Node
	var visit func(*Node)
	visit = func(x *Node) {
		for _, c := range x.Children {
			visit(c)
		}
		out = append(out, x)
	}
	visit(n)
	return out
}

// Count returns the number of nodes of each kind in the tree.
func (n *Node) Count() map[Kind]int {
	counts := make(map[Kind]int)
	for _, x := range n.PostOrder() {
		counts[x.Kind]++
	}
	return counts
}
