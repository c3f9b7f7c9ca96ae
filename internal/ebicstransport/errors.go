// Package ebicstransport implements the download and upload transaction
// state machines (§4.5): init → transfer(N) → receipt, driven over HTTP,
// with the error classification the rest of the core depends on to decide
// between retry and permanent failure.
package ebicstransport

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Class is the error-classification taxonomy of §4.5/§7: reachability
// errors are retried, ebics-permanent errors are not.
type Class string

const (
	ClassReachability Class = "reachability"
	ClassPermanent    Class = "ebics-permanent"
)

// Error wraps an EBICS transport failure with its retry classification.
type Error struct {
	Class   Class
	Code    string // bank technical/business return code, when available
	Message string
}

func (e *Error) Error() string {
	return "ebicstransport: " + string(e.Class) + ": " + e.Message
}

// ErrNoDownloadData classifies the bank's EBICS_NO_DOWNLOAD_DATA_AVAILABLE
// return code internally; Download unwraps it before returning, so callers
// see an empty (nil, nil) result rather than this error (§9: treated
// uniformly as an empty batch, never a warning or a failure).
var ErrNoDownloadData = errors.New("ebicstransport: no download data available")

func reachabilityError(msg string) error {
	return &Error{Class: ClassReachability, Message: msg}
}

func permanentError(code, msg string) error {
	return &Error{Class: ClassPermanent, Code: code, Message: msg}
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ebicstransport: invalid base64 block: %w", err)
	}
	return data, nil
}
