package ebicsxml

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	c14nAlgorithm = "http://www.w3.org/2001/10/xml-exc-c14n#"
	sigAlgorithm  = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	digestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// authenticatedNodes walks the tree collecting every element carrying
// authenticate='true' together with its descendants, in document order —
// the node set selected by the XPath
// "//*[@authenticate='true']/descendant-or-self::node()" in §4.2.
func authenticatedNodes(root *Element) []*Element {
	var out []*Element
	var walk func(e *Element)
	walk = func(e *Element) {
		if v, ok := e.Attr("authenticate"); ok && v == "true" {
			collectSubtree(e, &out)
			return
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

func collectSubtree(e *Element, out *[]*Element) {
	*out = append(*out, e)
	for _, c := range e.Children {
		collectSubtree(c, out)
	}
}

// canonicalize renders a node set in the exclusive-C14N style used for the
// digest: elements in document order, attributes sorted lexically by name,
// no whitespace beyond element structure. This is not a full RFC 3076/xml-
// exc-c14n implementation (see DESIGN.md) but preserves the properties the
// EBICS signature actually depends on: stable ordering and no incidental
// whitespace sensitivity.
func canonicalize(nodes []*Element) []byte {
	var buf []byte
	for _, n := range nodes {
		buf = append(buf, canonicalizeElement(n)...)
	}
	return buf
}

func canonicalizeElement(e *Element) []byte {
	var buf []byte
	buf = append(buf, '<')
	buf = append(buf, e.Name...)
	names := sortedAttrNames(e.Attrs)
	for _, name := range names {
		v, _ := e.Attr(name)
		buf = append(buf, fmt.Sprintf(` %s="%s"`, name, v)...)
	}
	buf = append(buf, '>')
	buf = append(buf, escapeText(e.Text)...)
	for _, c := range e.Children {
		buf = append(buf, canonicalizeElement(c)...)
	}
	buf = append(buf, []byte("</"+e.Name+">")...)
	return buf
}

// Sign builds the enveloped XML-DSIG signature over every authenticate='true'
// node set in root, then splices the resulting ds:Signature element into
// the element located at authSignaturePath (e.g. "header/AuthSignature").
func Sign(root *Element, authSignaturePath string, priv *rsa.PrivateKey, signFn func([]byte, *rsa.PrivateKey) ([]byte, error)) error {
	authTarget, err := findPath(root, authSignaturePath)
	if err != nil {
		return err
	}

	nodes := authenticatedNodes(root)
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no authenticate='true' nodes found to sign", ErrDestruction)
	}
	digest := sha256.Sum256(canonicalize(nodes))
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	signedInfo := buildSignedInfo(digestB64)
	signedInfoCanon := canonicalizeElement(signedInfo)

	sig, err := signFn(signedInfoCanon, priv)
	if err != nil {
		return fmt.Errorf("ebicsxml: sign enveloped signature: %w", err)
	}

	dsSignature := &Element{Name: "ds:Signature", Children: []*Element{
		signedInfo,
		{Name: "ds:SignatureValue", Text: base64.StdEncoding.EncodeToString(sig)},
	}}
	authTarget.Children = append(authTarget.Children, dsSignature)
	return nil
}

func buildSignedInfo(digestB64 string) *Element {
	return &Element{Name: "ds:SignedInfo", Children: []*Element{
		{Name: "ds:CanonicalizationMethod", Attrs: []Attr{{Name: "Algorithm", Value: c14nAlgorithm}}},
		{Name: "ds:SignatureMethod", Attrs: []Attr{{Name: "Algorithm", Value: sigAlgorithm}}},
		{Name: "ds:Reference", Attrs: []Attr{{Name: "URI", Value: ""}}, Children: []*Element{
			{Name: "ds:DigestMethod", Attrs: []Attr{{Name: "Algorithm", Value: digestAlgorithm}}},
			{Name: "ds:DigestValue", Text: digestB64},
		}},
	}}
}

// Verify recomputes the digest over the authenticate='true' node set and
// checks it against the DigestValue carried in the ds:Signature spliced
// into authSignaturePath, then verifies the SignatureValue against
// SignedInfo using the bank's authentication public key.
func Verify(root *Element, authSignaturePath string, pub *rsa.PublicKey, verifyFn func(data, sig []byte, pub *rsa.PublicKey) error) error {
	authTarget, err := findPath(root, authSignaturePath)
	if err != nil {
		return err
	}
	d := NewDestructor(authTarget)
	sigEl, err := d.One("ds:Signature")
	if err != nil {
		return fmt.Errorf("%w: no ds:Signature present under %s", ErrDestruction, authSignaturePath)
	}
	signedInfoD, err := sigEl.One("ds:SignedInfo")
	if err != nil {
		return err
	}
	refD, err := signedInfoD.One("ds:Reference")
	if err != nil {
		return err
	}
	digestValD, err := refD.One("ds:DigestValue")
	if err != nil {
		return err
	}
	sigValD, err := sigEl.One("ds:SignatureValue")
	if err != nil {
		return err
	}

	// recompute against the node set excluding the signature we just found
	nodes := authenticatedNodes(withoutDsSignature(root))
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no authenticate='true' nodes found to verify", ErrDestruction)
	}
	digest := sha256.Sum256(canonicalize(nodes))
	expected := base64.StdEncoding.EncodeToString(digest[:])
	if digestValD.Text() != expected {
		return fmt.Errorf("ebicsxml: digest mismatch verifying enveloped signature")
	}

	signedInfoCanon := canonicalizeElement(signedInfoD.node)
	sig, err := base64.StdEncoding.DecodeString(sigValD.Text())
	if err != nil {
		return fmt.Errorf("%w: invalid base64 signature value: %v", ErrDestruction, err)
	}
	if err := verifyFn(signedInfoCanon, sig, pub); err != nil {
		return fmt.Errorf("ebicsxml: signature verification failed: %w", err)
	}
	return nil
}

// withoutDsSignature returns a shallow-cloned tree with any already-present
// ds:Signature children stripped from the AuthSignature holder, so
// verification digests the same node set that was originally signed.
func withoutDsSignature(root *Element) *Element {
	clone := *root
	clone.Children = make([]*Element, len(root.Children))
	for i, c := range root.Children {
		if c.Name == "ds:Signature" {
			continue
		}
		cc := withoutDsSignature(c)
		clone.Children[i] = cc
	}
	// compact nils left by the skip above
	out := clone.Children[:0]
	for _, c := range clone.Children {
		if c != nil {
			out = append(out, c)
		}
	}
	clone.Children = out
	return &clone
}

func findPath(root *Element, path string) (*Element, error) {
	cur := root
	for _, tag := range splitPath(path) {
		var next *Element
		for _, c := range cur.Children {
			if c.Name == tag {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: path %q not found (missing %q)", ErrDestruction, path, tag)
		}
		cur = next
	}
	return cur, nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}
