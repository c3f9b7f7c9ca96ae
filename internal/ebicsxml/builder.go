package ebicsxml

import "strings"

// Builder emits a descent of elements without namespace juggling beyond
// attributes (§4.2). El follows a slash-separated path relative to the
// current cursor, creating each missing segment as a child and moving the
// cursor to the deepest new element.
type Builder struct {
	root   *Element
	cursor *Element
}

// NewBuilder starts a document rooted at an element named rootName.
func NewBuilder(rootName string) *Builder {
	root := &Element{Name: rootName}
	return &Builder{root: root, cursor: root}
}

// El descends path (e.g. "Body/OrderDetails/AdminOrderType") relative to
// the cursor. Intermediate segments are reused if a same-named child
// already exists (so repeated calls building up siblings under one parent,
// e.g. "GrpHdr/MsgId" then "GrpHdr/CreDtTm", share one GrpHdr); the final
// segment is always created fresh, so repeatable elements (e.g. multiple
// "CdtTrfTxInf") are never accidentally merged. Moves the cursor to the
// final element and returns the builder so calls can chain.
func (b *Builder) El(path string) *Builder {
	segments := strings.Split(path, "/")
	cur := b.cursor
	for i, name := range segments {
		if i == len(segments)-1 {
			child := &Element{Name: name}
			cur.Children = append(cur.Children, child)
			cur = child
			continue
		}
		cur = findOrCreateChild(cur, name)
	}
	b.cursor = cur
	return b
}

func findOrCreateChild(parent *Element, name string) *Element {
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	child := &Element{Name: name}
	parent.Children = append(parent.Children, child)
	return child
}

// Up moves the cursor back n levels towards the root (default 1).
func (b *Builder) Up(n ...int) *Builder {
	steps := 1
	if len(n) > 0 {
		steps = n[0]
	}
	for i := 0; i < steps; i++ {
		parent := b.findParent(b.root, b.cursor)
		if parent == nil {
			break
		}
		b.cursor = parent
	}
	return b
}

func (b *Builder) findParent(node, target *Element) *Element {
	for _, c := range node.Children {
		if c == target {
			return node
		}
		if p := b.findParent(c, target); p != nil {
			return p
		}
	}
	return nil
}

// Attr sets an attribute on the current cursor element.
func (b *Builder) Attr(name, value string) *Builder {
	b.cursor.setAttr(name, value)
	return b
}

// Text sets the text content of the current cursor element.
func (b *Builder) Text(content string) *Builder {
	b.cursor.Text = content
	return b
}

// Root returns the root element of the cursor's chain; callers pass it to
// At to move the cursor back to the root before the next El.
func (b *Builder) Root() *Element {
	return b.root
}

// At moves the cursor to an arbitrary element already built, letting a
// caller emit a sibling subtree without walking back up one step at a time.
func (b *Builder) At(e *Element) *Builder {
	b.cursor = e
	return b
}

// Current returns the element the cursor currently points at.
func (b *Builder) Current() *Element {
	return b.cursor
}

// Build finalizes the document and returns the root element.
func (b *Builder) Build() *Element {
	return b.root
}
