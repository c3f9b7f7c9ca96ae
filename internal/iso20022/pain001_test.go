package iso20022_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amt "nexus/internal/amount"
	"nexus/internal/ebicsxml"
	"nexus/internal/iso20022"
)

func TestEmitPain001_SingleTransaction(t *testing.T) {
	creditorPayto, err := amt.ParsePayto("payto://iban/CH9300762011623852957")
	require.NoError(t, err)

	req := iso20022.Pain001Request{
		RequestUID:     "U",
		InitiationTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Amount:         amtParse(t, "EUR:1.00"),
		DebtorName:     "Debtor",
		DebtorIBAN:     "DE89370400440532013000",
		CreditorName:   "Creditor",
		CreditorPayto:  creditorPayto,
		Subject:        "S",
	}

	data, err := iso20022.EmitPain001(req)
	require.NoError(t, err)

	d, err := ebicsxml.ParseDestructor(data)
	require.NoError(t, err)
	cstmr, err := d.One("CstmrCdtTrfInitn")
	require.NoError(t, err)

	grpHdr, err := cstmr.One("GrpHdr")
	require.NoError(t, err)
	msgID, err := grpHdr.One("MsgId")
	require.NoError(t, err)
	assert.Equal(t, "U", msgID.Text())

	ctrlSum, err := grpHdr.One("CtrlSum")
	require.NoError(t, err)
	assert.Equal(t, "1", ctrlSum.Text())

	pmtInf, err := cstmr.One("PmtInf")
	require.NoError(t, err)

	var txCount int
	err = pmtInf.Each("CdtTrfTxInf", func(tx *ebicsxml.Destructor) error {
		txCount++
		amtD, err := tx.One("Amt")
		require.NoError(t, err)
		instdAmtD, err := amtD.One("InstdAmt")
		require.NoError(t, err)
		ccy, ok := instdAmtD.Attr("Ccy")
		assert.True(t, ok)
		assert.Equal(t, "EUR", ccy)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, txCount, "exactly one CdtTrfTxInf must be emitted")

	assert.True(t, strings.Contains(string(data), "pain.001.001.09.ch.03.xsd"))
}

func amtParse(t *testing.T, s string) amt.Amount {
	t.Helper()
	a, err := amt.Parse(s)
	require.NoError(t, err)
	return a
}
