package ebicsmsg

import (
	"crypto/rsa"
	"fmt"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsxml"
)

// BuildDownloadInitialization builds the phase-1 BTD download request.
// lastExecutionTime, when non-zero, is carried as the DateRange lower bound
// so the bank returns only documents booked since the last successful tick.
func BuildDownloadInitialization(hdr Header, bt BTDescriptor, lastExecutionTime time.Time, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	b := ebicsxml.NewBuilder("ebicsRequest")
	b.Attr("Version", "H005").Attr("Revision", "1")

	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static")
	static := b.Current()
	b.At(static).El("HostID").Text(hdr.HostID)
	b.At(static).El("Nonce").Text(nonce)
	b.At(static).El("Timestamp").Text(timestamp(now))
	b.At(static).El("PartnerID").Text(hdr.PartnerID)
	b.At(static).El("UserID").Text(hdr.UserID)
	b.At(static).El("Product").Text(hdr.Product)

	b.At(static).El("OrderDetails/BTDOrderParams")
	btd := b.Current()
	b.At(btd).El("Service/ServiceName").Text(bt.Service)
	b.At(btd).El("Service/Scope").Text(bt.Scope)
	b.At(btd).El("Service/Container/ContainerType").Text(bt.Container)
	b.At(btd).El("Service/MsgName").Text(bt.MessageName).Attr("version", bt.MessageVersion)
	if bt.Option != "" {
		b.Attr("option", bt.Option)
	}
	if !lastExecutionTime.IsZero() {
		b.At(btd).El("DateRange/Start").Text(lastExecutionTime.UTC().Format("2006-01-02"))
		b.At(btd).El("DateRange/End").Text(now.UTC().Format("2006-01-02"))
	}

	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("AuthSignature")
	b.At(b.Root()).El("body")

	root := b.Build()
	if err := ebicsxml.Sign(root, "header/AuthSignature", signingKey, ebicscrypto.SignA006); err != nil {
		return nil, fmt.Errorf("ebicsmsg: sign download initialization: %w", err)
	}
	return ebicsxml.Marshal(root), nil
}

// BuildUploadInitialization builds the phase-1 BTU upload request, carrying
// the encrypted payload's transaction key and the first (or only) segment.
func BuildUploadInitialization(hdr Header, bt BTDescriptor, wrappedKey []byte, firstSegment []byte, numSegments int, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	b := ebicsxml.NewBuilder("ebicsRequest")
	b.Attr("Version", "H005").Attr("Revision", "1")

	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static")
	static := b.Current()
	b.At(static).El("HostID").Text(hdr.HostID)
	b.At(static).El("Nonce").Text(nonce)
	b.At(static).El("Timestamp").Text(timestamp(now))
	b.At(static).El("PartnerID").Text(hdr.PartnerID)
	b.At(static).El("UserID").Text(hdr.UserID)
	b.At(static).El("Product").Text(hdr.Product)
	b.At(static).El("NumSegments").Text(fmt.Sprintf("%d", numSegments))

	b.At(static).El("OrderDetails/BTUOrderParams")
	btu := b.Current()
	b.At(btu).El("Service/ServiceName").Text(bt.Service)
	b.At(btu).El("Service/Scope").Text(bt.Scope)
	b.At(btu).El("Service/MsgName").Text(bt.MessageName).Attr("version", bt.MessageVersion)

	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("AuthSignature")

	b.At(b.Root()).El("body/DataTransfer/DataEncryptionInfo/TransactionKey").Text(base64Block(wrappedKey))
	b.At(b.Root()).El("body/DataTransfer/OrderData").Attr("authenticate", "true").Text(base64Block(firstSegment))

	root := b.Build()
	if err := ebicsxml.Sign(root, "header/AuthSignature", signingKey, ebicscrypto.SignA006); err != nil {
		return nil, fmt.Errorf("ebicsmsg: sign upload initialization: %w", err)
	}
	return ebicsxml.Marshal(root), nil
}

// BuildTransfer builds a phase-2 transfer request for segment segmentNumber
// of transactionID, carrying segment as the (already encrypted) payload.
func BuildTransfer(hdr Header, transactionID string, segmentNumber int, segment []byte, lastSegment bool, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	b := ebicsxml.NewBuilder("ebicsRequest")
	b.Attr("Version", "H005").Attr("Revision", "1")

	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/HostID").Text(hdr.HostID)
	b.At(header).El("static/TransactionID").Text(transactionID)
	b.At(header).El("mutable/TransactionPhase").Text("Transfer")
	b.At(header).El("mutable/SegmentNumber").Text(fmt.Sprintf("%d", segmentNumber)).Attr("lastSegment", boolStr(lastSegment))
	b.At(header).El("AuthSignature")

	b.At(b.Root()).El("body/DataTransfer/OrderData").Attr("authenticate", "true").Text(base64Block(segment))

	root := b.Build()
	if err := ebicsxml.Sign(root, "header/AuthSignature", signingKey, ebicscrypto.SignA006); err != nil {
		return nil, fmt.Errorf("ebicsmsg: sign transfer: %w", err)
	}
	return ebicsxml.Marshal(root), nil
}

// BuildReceipt builds the phase-3 receipt, acknowledging successful segment
// assembly (download) with receiptCode "0" (success) or "1" (failure).
func BuildReceipt(hdr Header, transactionID string, receiptCode string, signingKey *rsa.PrivateKey, now time.Time) ([]byte, error) {
	b := ebicsxml.NewBuilder("ebicsRequest")
	b.Attr("Version", "H005").Attr("Revision", "1")

	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/HostID").Text(hdr.HostID)
	b.At(header).El("static/TransactionID").Text(transactionID)
	b.At(header).El("mutable/TransactionPhase").Text("Receipt")
	b.At(header).El("AuthSignature")

	b.At(b.Root()).El("body/TransferReceipt/ReceiptCode").Text(receiptCode)

	root := b.Build()
	if err := ebicsxml.Sign(root, "header/AuthSignature", signingKey, ebicscrypto.SignA006); err != nil {
		return nil, fmt.Errorf("ebicsmsg: sign receipt: %w", err)
	}
	return ebicsxml.Marshal(root), nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
