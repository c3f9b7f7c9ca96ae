package ebicsxml

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Destructor navigates a parsed Element tree with cardinality contracts
// (§4.2): one/opt require at most one match (one requires exactly one),
// each/map iterate every match, and the leaf readers (text/date/dateTime/
// enum/bool/attr) convert the current element's content.
type Destructor struct {
	node *Element
}

// NewDestructor wraps an already-parsed element for navigation.
func NewDestructor(node *Element) *Destructor {
	return &Destructor{node: node}
}

// ParseDestructor parses data and wraps the root in a Destructor.
func ParseDestructor(data []byte) (*Destructor, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewDestructor(root), nil
}

func (d *Destructor) children(tag string) []*Element {
	var out []*Element
	for _, c := range d.node.Children {
		if c.Name == tag {
			out = append(out, c)
		}
	}
	return out
}

// One requires exactly one child named tag and returns a Destructor over it.
func (d *Destructor) One(tag string) (*Destructor, error) {
	matches := d.children(tag)
	if len(matches) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one %q under %q, found %d", ErrDestruction, tag, d.node.Name, len(matches))
	}
	return NewDestructor(matches[0]), nil
}

// Opt allows zero or one child named tag; returns nil if absent.
func (d *Destructor) Opt(tag string) (*Destructor, error) {
	matches := d.children(tag)
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: expected at most one %q under %q, found %d", ErrDestruction, tag, d.node.Name, len(matches))
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return NewDestructor(matches[0]), nil
}

// Each calls f for every child named tag, in document order.
func (d *Destructor) Each(tag string, f func(*Destructor) error) error {
	for _, m := range d.children(tag) {
		if err := f(NewDestructor(m)); err != nil {
			return err
		}
	}
	return nil
}

// Map calls f for every child named tag and collects the results.
func Map[T any](d *Destructor, tag string, f func(*Destructor) (T, error)) ([]T, error) {
	var out []T
	for _, m := range d.children(tag) {
		v, err := f(NewDestructor(m))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Text returns the current element's text content.
func (d *Destructor) Text() string {
	return strings.TrimSpace(d.node.Text)
}

// Attr returns a named attribute of the current element.
func (d *Destructor) Attr(name string) (string, bool) {
	return d.node.Attr(name)
}

// Date parses the current element's text as an ISO-8601 calendar date
// (YYYY-MM-DD).
func (d *Destructor) Date() (time.Time, error) {
	t, err := time.Parse("2006-01-02", d.Text())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse date %q: %v", ErrDestruction, d.Text(), err)
	}
	return t, nil
}

// DateTime parses the current element's text as an ISO-8601 timestamp,
// accepting both a zone offset and a bare "Z" suffix.
func (d *Destructor) DateTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, d.Text())
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", d.Text())
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: parse dateTime %q: %v", ErrDestruction, d.Text(), err)
		}
	}
	return t, nil
}

// Bool parses the current element's text as an XML boolean ("true"/"1" or
// "false"/"0").
func (d *Destructor) Bool() (bool, error) {
	switch d.Text() {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a valid boolean", ErrDestruction, d.Text())
	}
}

// Enum validates the current element's text against an allowed set and
// returns it typed as E (a defined string type), failing destruction_error
// style if the value is not in the set.
func Enum[E ~string](d *Destructor, allowed ...E) (E, error) {
	v := E(d.Text())
	for _, a := range allowed {
		if a == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of the allowed enum values", ErrDestruction, d.Text())
}

// Int parses the current element's text as a base-10 integer.
func (d *Destructor) Int() (int64, error) {
	v, err := strconv.ParseInt(d.Text(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse int %q: %v", ErrDestruction, d.Text(), err)
	}
	return v, nil
}
