// Package iso20022 implements the ISO 20022 codecs (§4.3): pain.001
// payment-initiation emission and pain.002/camt.054 parsing, built on the
// generic builder/destructor of ebicsxml.
package iso20022

import (
	"fmt"
	"time"

	"nexus/internal/amount"
	"nexus/internal/ebicsxml"
)

// Pain001Request carries the fields needed to emit a single-transaction
// pain.001.001.09 message (§4.3: "one payment per message").
type Pain001Request struct {
	RequestUID      string // becomes MsgId
	InitiationTime  time.Time
	Amount          amount.Amount
	DebtorName      string
	DebtorIBAN      string
	DebtorBIC       string // optional
	CreditorName    string
	CreditorPayto   amount.Payto
	Subject         string
}

const pain001Namespace = "urn:iso:std:iso:20022:tech:xsd:pain.001.001.09"
const pain001SchemaLocation = "urn:iso:std:iso:20022:tech:xsd:pain.001.001.09 pain.001.001.09.ch.03.xsd"

// EmitPain001 builds the signed-ready pain.001 document for a single
// credit-transfer transaction.
func EmitPain001(req Pain001Request) ([]byte, error) {
	if req.CreditorPayto.IBAN == "" {
		return nil, fmt.Errorf("iso20022: pain.001 creditor IBAN is required")
	}
	instdAmt, err := req.Amount.BankString()
	if err != nil {
		return nil, fmt.Errorf("iso20022: pain.001 amount: %w", err)
	}
	ctrlSum := req.Amount.String()

	b := ebicsxml.NewBuilder("Document")
	b.Attr("xmlns", pain001Namespace)
	b.Attr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	b.Attr("xsi:schemaLocation", pain001SchemaLocation)

	b.El("CstmrCdtTrfInitn")
	cstmr := b.Current()

	b.El("GrpHdr/MsgId").Text(req.RequestUID)
	b.At(cstmr).El("GrpHdr/CreDtTm").Text(req.InitiationTime.UTC().Format(time.RFC3339))
	b.At(cstmr).El("GrpHdr/NbOfTxs").Text("1")
	b.At(cstmr).El("GrpHdr/CtrlSum").Text(ctrlSum)
	b.At(cstmr).El("GrpHdr/InitgPty/Nm").Text(req.DebtorName)

	b.At(cstmr).El("PmtInf")
	pmtInf := b.Current()
	b.At(pmtInf).El("PmtInfId").Text("NOTPROVIDED")
	b.At(pmtInf).El("PmtMtd").Text("TRF")
	b.At(pmtInf).El("BtchBookg").Text("false")
	b.At(pmtInf).El("NbOfTxs").Text("1")
	b.At(pmtInf).El("CtrlSum").Text(ctrlSum)
	b.At(pmtInf).El("ReqdExctnDt/Dt").Text(req.InitiationTime.UTC().Format("2006-01-02"))
	b.At(pmtInf).El("Dbtr/Nm").Text(req.DebtorName)
	b.At(pmtInf).El("DbtrAcct/Id/IBAN").Text(req.DebtorIBAN)
	if req.DebtorBIC != "" {
		b.At(pmtInf).El("DbtrAgt/FinInstnId/BICFI").Text(req.DebtorBIC)
	} else {
		b.At(pmtInf).El("DbtrAgt/FinInstnId/Othr/Id").Text("NOTPROVIDED")
	}
	b.At(pmtInf).El("ChrgBr").Text("SLEV")

	b.At(pmtInf).El("CdtTrfTxInf")
	txInf := b.Current()
	b.At(txInf).El("PmtId/InstrId").Text("NOTPROVIDED")
	b.At(txInf).El("PmtId/EndToEndId").Text("NOTPROVIDED")
	b.At(txInf).El("Amt/InstdAmt").Attr("Ccy", req.Amount.Currency).Text(instdAmt)
	if req.CreditorPayto.BIC != "" {
		b.At(txInf).El("CdtrAgt/FinInstnId/BICFI").Text(req.CreditorPayto.BIC)
	}
	b.At(txInf).El("Cdtr/Nm").Text(req.CreditorName)
	b.At(txInf).El("CdtrAcct/Id/IBAN").Text(req.CreditorPayto.IBAN)
	b.At(txInf).El("RmtInf/Ustrd").Text(req.Subject)

	return ebicsxml.Marshal(b.Build()), nil
}
