package iso20022

import "nexus/internal/ebicsxml"

// PaymentStatus is one resolved status record from a pain.002
// payment-status report (§4.3). EffectiveCode returns the effective status
// after cascading tx-level over payment-level over message-level.
type PaymentStatus struct {
	MsgID       string
	PaymentID   *string
	TxID        *string
	PaymentCode string
	TxCode      *string
	Reasons     []string
}

// EffectiveCode returns TxCode when present, otherwise PaymentCode — the
// cascading resolution described in §4.3.
func (s PaymentStatus) EffectiveCode() string {
	if s.TxCode != nil && *s.TxCode != "" {
		return *s.TxCode
	}
	return s.PaymentCode
}

// ParsePaymentStatus parses a pain.002 payment-status report. The report is
// multi-level: a message-level status (GrpSts) may be overridden by a
// payment-level status (PmtInfSts), which may in turn be overridden by a
// transaction-level status (TxSts). ParsePaymentStatus returns one
// PaymentStatus per leaf (payment with no transactions, or transaction).
func ParsePaymentStatus(data []byte) ([]PaymentStatus, error) {
	d, err := ebicsxml.ParseDestructor(data)
	if err != nil {
		return nil, err
	}
	rpt, err := d.One("CstmrPmtStsRpt")
	if err != nil {
		return nil, err
	}
	grpInf, err := rpt.One("OrgnlGrpInfAndSts")
	if err != nil {
		return nil, err
	}
	msgIDD, err := grpInf.One("OrgnlMsgId")
	if err != nil {
		return nil, err
	}
	msgID := msgIDD.Text()

	msgCode := ""
	if grpStsD, err := grpInf.Opt("GrpSts"); err != nil {
		return nil, err
	} else if grpStsD != nil {
		msgCode = grpStsD.Text()
	}
	msgReasons, err := readReasons(grpInf)
	if err != nil {
		return nil, err
	}

	var out []PaymentStatus
	err = rpt.Each("OrgnlPmtInfAndSts", func(pmt *ebicsxml.Destructor) error {
		paymentCode := msgCode
		if pmtStsD, err := pmt.Opt("PmtInfSts"); err != nil {
			return err
		} else if pmtStsD != nil {
			paymentCode = pmtStsD.Text()
		}
		var paymentID *string
		if idD, err := pmt.Opt("OrgnlPmtInfId"); err != nil {
			return err
		} else if idD != nil {
			v := idD.Text()
			paymentID = &v
		}
		paymentReasons, err := readReasons(pmt)
		if err != nil {
			return err
		}
		if len(paymentReasons) == 0 {
			paymentReasons = msgReasons
		}

		var txCount int
		err = pmt.Each("TxInfAndSts", func(tx *ebicsxml.Destructor) error {
			txCount++
			txCode := ""
			if txStsD, err := tx.Opt("TxSts"); err != nil {
				return err
			} else if txStsD != nil {
				txCode = txStsD.Text()
			}
			var txID *string
			if idD, err := tx.Opt("OrgnlTxId"); err != nil {
				return err
			} else if idD != nil {
				v := idD.Text()
				txID = &v
			}
			txReasons, err := readReasons(tx)
			if err != nil {
				return err
			}
			if len(txReasons) == 0 {
				txReasons = paymentReasons
			}
			out = append(out, PaymentStatus{
				MsgID: msgID, PaymentID: paymentID, TxID: txID,
				PaymentCode: paymentCode, TxCode: strPtrOrNil(txCode), Reasons: txReasons,
			})
			return nil
		})
		if err != nil {
			return err
		}
		if txCount == 0 {
			out = append(out, PaymentStatus{
				MsgID: msgID, PaymentID: paymentID,
				PaymentCode: paymentCode, Reasons: paymentReasons,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readReasons(d *ebicsxml.Destructor) ([]string, error) {
	var reasons []string
	err := d.Each("StsRsnInf", func(info *ebicsxml.Destructor) error {
		rsnD, err := info.Opt("Rsn")
		if err != nil || rsnD == nil {
			return err
		}
		cdD, err := rsnD.One("Cd")
		if err != nil {
			return nil
		}
		reasons = append(reasons, cdD.Text())
		return nil
	})
	return reasons, err
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
