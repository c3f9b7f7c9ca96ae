package ebicstransport

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicsxml"
)

// Upload runs the full BTU upload transaction (§4.5): the document is
// zipped, ZLIB-compressed, AES-128 encrypted with a fresh transaction key
// wrapped under the bank's encryption key, split into segments, and driven
// through init → transfer(N) → receipt. Returns the bank-assigned OrderID,
// the upload's receipt, on success.
func (c *Client) Upload(ctx context.Context, hdr ebicsmsg.Header, bt ebicsmsg.BTDescriptor, documentName string, document []byte, keys Keys) (orderID string, err error) {
	zipped, err := zipSingleFile(documentName, document)
	if err != nil {
		return "", fmt.Errorf("ebicstransport: zip upload document: %w", err)
	}
	compressed, err := deflateZlib(zipped)
	if err != nil {
		return "", fmt.Errorf("ebicstransport: compress upload document: %w", err)
	}
	if keys.BankEncryptPublic == nil {
		return "", permanentError("", "no accepted bank encryption key for upload")
	}
	ciphertext, wrappedKey, err := ebicscrypto.EncryptE002(compressed, keys.BankEncryptPublic)
	if err != nil {
		return "", permanentError("", fmt.Sprintf("encrypt upload payload: %v", err))
	}

	segments := splitSegments(ciphertext, segmentSize)

	now := time.Now()
	initReq, err := ebicsmsg.BuildUploadInitialization(hdr, bt, wrappedKey, segments[0], len(segments), keys.SignaturePrivate, now)
	if err != nil {
		return "", fmt.Errorf("ebicstransport: build upload initialization: %w", err)
	}
	raw, err := c.post(ctx, initReq)
	if err != nil {
		return "", err
	}
	d, err := verifiedResponse(raw, keys.BankAuthPublic)
	if err != nil {
		return "", err
	}
	code, err := technicalReturnCode(d)
	if err != nil {
		return "", err
	}
	if err := classifyReturnCode(code); err != nil {
		return "", err
	}
	transactionID, err := parseUploadTransactionID(d)
	if err != nil {
		return "", err
	}

	for segNum := 2; segNum <= len(segments); segNum++ {
		req, err := ebicsmsg.BuildTransfer(hdr, transactionID, segNum, segments[segNum-1], segNum == len(segments), keys.SignaturePrivate, time.Now())
		if err != nil {
			return "", fmt.Errorf("ebicstransport: build upload transfer: %w", err)
		}
		raw, err := c.post(ctx, req)
		if err != nil {
			return "", err
		}
		td, err := verifiedResponse(raw, keys.BankAuthPublic)
		if err != nil {
			return "", err
		}
		tc, err := technicalReturnCode(td)
		if err != nil {
			return "", err
		}
		if err := classifyReturnCode(tc); err != nil {
			return "", err
		}
	}

	receiptReq, err := ebicsmsg.BuildReceipt(hdr, transactionID, "0", keys.SignaturePrivate, time.Now())
	if err != nil {
		return "", fmt.Errorf("ebicstransport: build upload receipt: %w", err)
	}
	receiptRaw, err := c.post(ctx, receiptReq)
	if err != nil {
		return "", err
	}
	rd, err := verifiedResponse(receiptRaw, keys.BankAuthPublic)
	if err != nil {
		return "", err
	}
	rc, err := technicalReturnCode(rd)
	if err != nil {
		return "", err
	}
	if err := classifyReturnCode(rc); err != nil {
		return "", err
	}

	orderID, err = parseOrderID(d)
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func parseUploadTransactionID(d *ebicsxml.Destructor) (string, error) {
	header, err := d.One("header")
	if err != nil {
		return "", err
	}
	static, err := header.One("static")
	if err != nil {
		return "", err
	}
	txD, err := static.One("TransactionID")
	if err != nil {
		return "", err
	}
	return txD.Text(), nil
}

// parseOrderID extracts the bank-assigned OrderID from the upload
// initialization response header, the receipt for the uploaded message
// that later HAC log entries reference (§4.9).
func parseOrderID(d *ebicsxml.Destructor) (string, error) {
	header, err := d.One("header")
	if err != nil {
		return "", err
	}
	mutable, err := header.One("mutable")
	if err != nil {
		return "", err
	}
	orderD, err := mutable.Opt("OrderID")
	if err != nil {
		return "", err
	}
	if orderD == nil {
		return "", permanentError("", "response carried no OrderID")
	}
	return orderD.Text(), nil
}

func zipSingleFile(name string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deflateZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitSegments(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var segments [][]byte
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		segments = append(segments, data[start:end])
	}
	return segments
}
