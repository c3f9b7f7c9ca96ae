package ebicsxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Attr is a single XML attribute, kept as a slice (not a map) on Element so
// that attribute order is stable across marshal/canonicalize passes.
type Attr struct {
	Name  string
	Value string
}

// Element is a generic XML element tree node. The builder constructs it
// top-down; the destructor parses bytes into it and navigates it by path.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// Attr returns the value of the named attribute and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// setAttr overwrites or appends an attribute; Builder.Attr is its caller.
func (e *Element) setAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Marshal serializes the tree as an XML document, with an XML declaration.
func Marshal(root *Element) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	writeElement(&buf, root)
	return buf.Bytes()
}

func writeElement(buf *bytes.Buffer, e *Element) {
	fmt.Fprintf(buf, "<%s", e.Name)
	for _, a := range e.Attrs {
		fmt.Fprintf(buf, ` %s="%s"`, a.Name, escapeAttr(a.Value))
	}
	if len(e.Children) == 0 && e.Text == "" {
		buf.WriteString("/>")
		return
	}
	buf.WriteString(">")
	if e.Text != "" {
		buf.WriteString(escapeText(e.Text))
	}
	for _, c := range e.Children {
		writeElement(buf, c)
	}
	fmt.Fprintf(buf, "</%s>", e.Name)
}

func escapeText(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func escapeAttr(s string) string {
	return escapeText(s)
}

// Parse reads a byte stream into an Element tree, reconstructing each
// element's literal prefix:local name the same way it already does for
// attributes. It reads raw tokens, so the decoder reports the literal prefix
// as Name.Space and an xmlns declaration (such as pain.001's default
// namespace) never turns an element name into a namespace URL.
func Parse(data []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []*Element
	var root *Element

	for {
		tok, err := dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: parse xml: %v", ErrDestruction, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if t.Name.Space != "" && t.Name.Space != "xmlns" {
				name = t.Name.Space + ":" + t.Name.Local
			}
			el := &Element{Name: name}
			for _, a := range t.Attr {
				name := a.Name.Local
				if a.Name.Space != "" && a.Name.Space != "xmlns" {
					name = a.Name.Space + ":" + a.Name.Local
				}
				el.Attrs = append(el.Attrs, Attr{Name: name, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrDestruction)
	}
	return root, nil
}

// sortedAttrNames returns attribute names in lexical order, used only by
// canonicalization (signature.go), never by Marshal which preserves
// builder-supplied order.
func sortedAttrNames(attrs []Attr) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	sort.Strings(names)
	return names
}
