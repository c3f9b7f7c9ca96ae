// Package ebicsxml implements the generic XML builder/destructor (§4.2)
// used by the ISO 20022 and EBICS envelope codecs, plus the enveloped
// XML-DSIG signature used to authenticate EBICS request and response
// bodies.
package ebicsxml

import "errors"

// ErrDestruction is returned by the destructor when a cardinality contract
// is violated: one() finds zero or more than one match, opt() finds more
// than one.
var ErrDestruction = errors.New("ebicsxml: destruction error")
