package ebicstransport

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicsxml"
)

// Download runs the full BTD download transaction (§4.5): phase-1
// initialization, phase-2 transfers until the bank reports no more
// segments, then a phase-3 receipt acknowledging success. It returns the
// reassembled, decrypted, decompressed business document. When the bank
// reports EBICS_NO_DOWNLOAD_DATA_AVAILABLE, Download returns (nil, nil):
// an empty result is not a failure.
func (c *Client) Download(ctx context.Context, hdr ebicsmsg.Header, bt ebicsmsg.BTDescriptor, lastExecutionTime time.Time, keys Keys) ([]byte, error) {
	now := time.Now()
	initReq, err := ebicsmsg.BuildDownloadInitialization(hdr, bt, lastExecutionTime, keys.SignaturePrivate, now)
	if err != nil {
		return nil, fmt.Errorf("ebicstransport: build download initialization: %w", err)
	}

	raw, err := c.post(ctx, initReq)
	if err != nil {
		return nil, err
	}
	d, err := verifiedResponse(raw, keys.BankAuthPublic)
	if err != nil {
		return nil, err
	}
	code, err := technicalReturnCode(d)
	if err != nil {
		return nil, err
	}
	if err := classifyReturnCode(code); err != nil {
		if errors.Is(err, ErrNoDownloadData) {
			return nil, nil
		}
		return nil, err
	}

	transactionID, wrappedKey, firstSegment, totalSegments, err := parseDownloadInitPayload(d)
	if err != nil {
		return nil, err
	}

	segments := [][]byte{firstSegment}
	for segNum := 2; segNum <= totalSegments; segNum++ {
		req, err := ebicsmsg.BuildTransfer(hdr, transactionID, segNum, nil, segNum == totalSegments, keys.SignaturePrivate, time.Now())
		if err != nil {
			return nil, fmt.Errorf("ebicstransport: build download transfer: %w", err)
		}
		raw, err := c.post(ctx, req)
		if err != nil {
			return nil, err
		}
		td, err := verifiedResponse(raw, keys.BankAuthPublic)
		if err != nil {
			return nil, err
		}
		tc, err := technicalReturnCode(td)
		if err != nil {
			return nil, err
		}
		if err := classifyReturnCode(tc); err != nil {
			return nil, err
		}
		seg, err := parseDownloadTransferSegment(td)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	var encrypted bytes.Buffer
	for _, seg := range segments {
		encrypted.Write(seg)
	}

	compressed, err := ebicscrypto.DecryptE002(encrypted.Bytes(), wrappedKey, keys.EncryptionPrivate)
	if err != nil {
		return nil, permanentError("", fmt.Sprintf("decrypt download payload: %v", err))
	}
	document, err := inflateZlib(compressed)
	if err != nil {
		return nil, permanentError("", fmt.Sprintf("inflate download payload: %v", err))
	}

	receiptReq, err := ebicsmsg.BuildReceipt(hdr, transactionID, "0", keys.SignaturePrivate, time.Now())
	if err != nil {
		return nil, fmt.Errorf("ebicstransport: build receipt: %w", err)
	}
	receiptRaw, err := c.post(ctx, receiptReq)
	if err != nil {
		return nil, err
	}
	rd, err := verifiedResponse(receiptRaw, keys.BankAuthPublic)
	if err != nil {
		return nil, err
	}
	rc, err := technicalReturnCode(rd)
	if err != nil {
		return nil, err
	}
	if err := classifyReturnCode(rc); err != nil {
		return nil, err
	}

	return document, nil
}

func parseDownloadInitPayload(d *ebicsxml.Destructor) (transactionID string, wrappedKey, firstSegment []byte, totalSegments int, err error) {
	header, err := d.One("header")
	if err != nil {
		return "", nil, nil, 0, err
	}
	static, err := header.One("static")
	if err != nil {
		return "", nil, nil, 0, err
	}
	txD, err := static.One("TransactionID")
	if err != nil {
		return "", nil, nil, 0, err
	}
	transactionID = txD.Text()

	numD, err := static.Opt("NumSegments")
	if err != nil {
		return "", nil, nil, 0, err
	}
	totalSegments = 1
	if numD != nil {
		n, err := numD.Int()
		if err != nil {
			return "", nil, nil, 0, err
		}
		totalSegments = int(n)
	}

	body, err := d.One("body")
	if err != nil {
		return "", nil, nil, 0, err
	}
	transfer, err := body.One("DataTransfer")
	if err != nil {
		return "", nil, nil, 0, err
	}
	keyD, err := transfer.One("DataEncryptionInfo")
	if err != nil {
		return "", nil, nil, 0, err
	}
	tkD, err := keyD.One("TransactionKey")
	if err != nil {
		return "", nil, nil, 0, err
	}
	wrappedKey, err = decodeBase64(tkD.Text())
	if err != nil {
		return "", nil, nil, 0, err
	}

	orderDataD, err := transfer.One("OrderData")
	if err != nil {
		return "", nil, nil, 0, err
	}
	firstSegment, err = decodeBase64(orderDataD.Text())
	if err != nil {
		return "", nil, nil, 0, err
	}
	return transactionID, wrappedKey, firstSegment, totalSegments, nil
}

func parseDownloadTransferSegment(d *ebicsxml.Destructor) ([]byte, error) {
	body, err := d.One("body")
	if err != nil {
		return nil, err
	}
	transfer, err := body.One("DataTransfer")
	if err != nil {
		return nil, err
	}
	orderDataD, err := transfer.One("OrderData")
	if err != nil {
		return nil, err
	}
	return decodeBase64(orderDataD.Text())
}

func inflateZlib(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
