package iso20022

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"nexus/internal/amount"
	"nexus/internal/ebicsxml"
)

// IncomingCandidate is a CRDT entry ready for C7 registration.
type IncomingCandidate struct {
	Amount        amount.Amount
	DebtorPayto   string
	Subject       string
	ExecutionTime time.Time
	BankID        string
}

// OutgoingCandidate is a DBIT entry ready for C7 registration.
type OutgoingCandidate struct {
	Amount        amount.Amount
	ExecutionTime time.Time
	MessageID     string
}

// ReversalCandidate is a reversed CRDT entry (§4.3): a prior outgoing or
// initiated payment, identified by MsgId, that the bank has since reversed.
type ReversalCandidate struct {
	MessageID      string
	AdditionalInfo string
}

// SkippedEntry records an entry the parser declined to emit a candidate
// for — wrong currency or an unbooked status — so the caller can log it
// without treating the whole batch as failed (§4.8).
type SkippedEntry struct {
	Reason string
}

// Camt054Result is the full set of candidates extracted from one camt.054
// notification document.
type Camt054Result struct {
	Incoming  []IncomingCandidate
	Outgoing  []OutgoingCandidate
	Reversals []ReversalCandidate
	Skipped   []SkippedEntry
}

// ParseCamt054 parses a debit/credit notification, emitting typed
// candidates for every booked entry whose currency matches
// configuredCurrency (§4.3's accept-currency policy).
func ParseCamt054(data []byte, configuredCurrency string) (Camt054Result, error) {
	d, err := ebicsxml.ParseDestructor(data)
	if err != nil {
		return Camt054Result{}, err
	}
	ntfctn, err := d.One("Ntfctn")
	if err != nil {
		return Camt054Result{}, err
	}

	var result Camt054Result
	err = ntfctn.Each("Ntry", func(entry *ebicsxml.Destructor) error {
		booked, err := entryIsBooked(entry)
		if err != nil {
			return err
		}
		if !booked {
			result.Skipped = append(result.Skipped, SkippedEntry{Reason: "entry status is not BOOK"})
			return nil
		}

		bookgDtD, err := entry.One("BookgDt")
		if err != nil {
			return err
		}
		dtD, err := bookgDtD.One("Dt")
		if err != nil {
			return err
		}
		bookingDate, err := dtD.Date()
		if err != nil {
			return err
		}

		ntryDtlsD, err := entry.Opt("NtryDtls")
		if err != nil || ntryDtlsD == nil {
			return err
		}
		return ntryDtlsD.Each("TxDtls", func(tx *ebicsxml.Destructor) error {
			return parseTxDtls(tx, bookingDate, configuredCurrency, &result)
		})
	})
	if err != nil {
		return Camt054Result{}, err
	}
	return result, nil
}

func entryIsBooked(entry *ebicsxml.Destructor) (bool, error) {
	statusD, err := entry.Opt("Sts")
	if err != nil {
		return false, err
	}
	if statusD == nil {
		return false, nil
	}
	if cdD, err := statusD.Opt("Cd"); err == nil && cdD != nil {
		return cdD.Text() == "BOOK", nil
	}
	return statusD.Text() == "BOOK", nil
}

func parseTxDtls(tx *ebicsxml.Destructor, bookingDate time.Time, configuredCurrency string, result *Camt054Result) error {
	amtD, err := tx.One("Amt")
	if err != nil {
		return err
	}
	currency, _ := amtD.Attr("Ccy")
	if currency != configuredCurrency {
		result.Skipped = append(result.Skipped, SkippedEntry{
			Reason: fmt.Sprintf("entry currency %q does not match configured currency %q", currency, configuredCurrency),
		})
		return nil
	}
	txAmount, err := amount.Parse(currency + ":" + amtD.Text())
	if err != nil {
		return fmt.Errorf("iso20022: camt.054 entry amount: %w", err)
	}

	cdtDbtIndD, err := tx.One("CdtDbtInd")
	if err != nil {
		return err
	}
	cdtDbtInd := cdtDbtIndD.Text()

	isReversal := false
	if rvslD, err := tx.Opt("RvslInd"); err == nil && rvslD != nil {
		isReversal, err = rvslD.Bool()
		if err != nil {
			return err
		}
	}

	refsD, err := tx.One("Refs")
	if err != nil {
		return err
	}

	switch {
	case isReversal && cdtDbtInd == "CRDT":
		msgIDD, err := refsD.One("MsgId")
		if err != nil {
			return err
		}
		addtl := ""
		if addtlD, err := tx.Opt("AddtlNtryInf"); err == nil && addtlD != nil {
			addtl = addtlD.Text()
		}
		result.Reversals = append(result.Reversals, ReversalCandidate{
			MessageID: msgIDD.Text(), AdditionalInfo: addtl,
		})

	case cdtDbtInd == "CRDT":
		acctSvcrRefD, err := refsD.One("AcctSvcrRef")
		if err != nil {
			return err
		}
		payto, err := buildDebtorPayto(tx)
		if err != nil {
			return err
		}
		subject, err := concatUstrd(tx)
		if err != nil {
			return err
		}
		result.Incoming = append(result.Incoming, IncomingCandidate{
			Amount: txAmount, DebtorPayto: payto, Subject: subject,
			ExecutionTime: bookingDate, BankID: acctSvcrRefD.Text(),
		})

	case cdtDbtInd == "DBIT":
		msgIDD, err := refsD.One("MsgId")
		if err != nil {
			return err
		}
		result.Outgoing = append(result.Outgoing, OutgoingCandidate{
			Amount: txAmount, ExecutionTime: bookingDate, MessageID: msgIDD.Text(),
		})

	default:
		result.Skipped = append(result.Skipped, SkippedEntry{Reason: fmt.Sprintf("unrecognized CdtDbtInd %q", cdtDbtInd)})
	}
	return nil
}

func buildDebtorPayto(tx *ebicsxml.Destructor) (string, error) {
	rltdPtiesD, err := tx.Opt("RltdPties")
	if err != nil || rltdPtiesD == nil {
		return "", err
	}
	dbtrAcctD, err := rltdPtiesD.Opt("DbtrAcct")
	if err != nil || dbtrAcctD == nil {
		return "", err
	}
	idD, err := dbtrAcctD.One("Id")
	if err != nil {
		return "", err
	}
	ibanD, err := idD.One("IBAN")
	if err != nil {
		return "", err
	}

	payto := "payto://iban/" + ibanD.Text()
	if dbtrD, err := rltdPtiesD.Opt("Dbtr"); err == nil && dbtrD != nil {
		if ptyD, err := dbtrD.Opt("Pty"); err == nil && ptyD != nil {
			if nmD, err := ptyD.Opt("Nm"); err == nil && nmD != nil && nmD.Text() != "" {
				payto += "?receiver-name=" + url.QueryEscape(nmD.Text())
			}
		}
	}
	return payto, nil
}

func concatUstrd(tx *ebicsxml.Destructor) (string, error) {
	rmtInfD, err := tx.Opt("RmtInf")
	if err != nil || rmtInfD == nil {
		return "", err
	}
	var parts []string
	err = rmtInfD.Each("Ustrd", func(u *ebicsxml.Destructor) error {
		parts = append(parts, u.Text())
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(parts, " "), nil
}
