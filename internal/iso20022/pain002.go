package iso20022

import (
	"time"

	"nexus/internal/ebicsxml"
)

// AckAction enumerates the HAC journal entry kinds named in §4.3.
type AckAction string

const (
	ActionFileUpload        AckAction = "FILE_UPLOAD"
	ActionFileDownload      AckAction = "FILE_DOWNLOAD"
	ActionESUpload          AckAction = "ES_UPLOAD"
	ActionESDownload        AckAction = "ES_DOWNLOAD"
	ActionESVerification    AckAction = "ES_VERIFICATION"
	ActionVEU               AckAction = "VEU"
	ActionAdditional        AckAction = "ADDITIONAL"
	ActionOrderHACFinalPos  AckAction = "ORDER_HAC_FINAL_POS"
	ActionOrderHACFinalNeg  AckAction = "ORDER_HAC_FINAL_NEG"
)

var hacActions = []AckAction{
	ActionFileUpload, ActionFileDownload, ActionESUpload, ActionESDownload,
	ActionESVerification, ActionVEU, ActionAdditional, ActionOrderHACFinalPos, ActionOrderHACFinalNeg,
}

// CustomerAck is one journal entry of a pain.002 HAC document.
type CustomerAck struct {
	Action     AckAction
	OrderID    *string
	ReasonCode *string
	Timestamp  time.Time
}

// ParseHAC parses a pain.002 HAC acknowledgement log, returning its entries
// in document order.
func ParseHAC(data []byte) ([]CustomerAck, error) {
	d, err := ebicsxml.ParseDestructor(data)
	if err != nil {
		return nil, err
	}
	rpt, err := d.One("CstmrPmtStsRpt")
	if err != nil {
		return nil, err
	}

	var out []CustomerAck
	err = rpt.Each("OrgnlPmtInfAndSts", func(entry *ebicsxml.Destructor) error {
		ack, err := parseHACEntry(entry)
		if err != nil {
			return err
		}
		out = append(out, ack)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseHACEntry(entry *ebicsxml.Destructor) (CustomerAck, error) {
	var ack CustomerAck

	statusD, err := entry.One("PmtInfSts")
	if err != nil {
		return CustomerAck{}, err
	}
	action, err := ebicsxml.Enum(statusD, hacActions...)
	if err != nil {
		return CustomerAck{}, err
	}
	ack.Action = action

	if orderIDD, err := entry.Opt("OrgnlPmtInfId"); err != nil {
		return CustomerAck{}, err
	} else if orderIDD != nil {
		v := orderIDD.Text()
		ack.OrderID = &v
	}

	if reasonD, err := entry.Opt("StsRsnInf"); err != nil {
		return CustomerAck{}, err
	} else if reasonD != nil {
		if rsn, err := reasonD.One("Rsn"); err == nil {
			if cd, err := rsn.One("Cd"); err == nil {
				v := cd.Text()
				ack.ReasonCode = &v
			}
		}
	}

	orgtrD, err := entry.One("Orgtr")
	if err != nil {
		return CustomerAck{}, err
	}
	idD, err := orgtrD.One("Id")
	if err != nil {
		return CustomerAck{}, err
	}
	orgIDD, err := idD.One("OrgId")
	if err != nil {
		return CustomerAck{}, err
	}
	var ts time.Time
	err = orgIDD.Each("Othr", func(othr *ebicsxml.Destructor) error {
		keyD, err := othr.One("Id")
		if err != nil {
			return err
		}
		if keyD.Text() != "TimeStamp" {
			return nil
		}
		schmeD, err := othr.One("SchmeNm")
		if err != nil {
			return err
		}
		prtryD, err := schmeD.One("Prtry")
		if err != nil {
			return err
		}
		ts, err = prtryD.DateTime()
		return err
	})
	if err != nil {
		return CustomerAck{}, err
	}
	ack.Timestamp = ts
	return ack, nil
}
