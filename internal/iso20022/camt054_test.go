package iso20022_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/iso20022"
)

const camt054Sample = `<Document>
  <Ntfctn>
    <Ntry>
      <Sts><Cd>BOOK</Cd></Sts>
      <BookgDt><Dt>2024-05-01</Dt></BookgDt>
      <NtryDtls>
        <TxDtls>
          <Amt Ccy="EUR">10.00</Amt>
          <CdtDbtInd>CRDT</CdtDbtInd>
          <RltdPties>
            <DbtrAcct><Id><IBAN>DE89370400440532013000</IBAN></Id></DbtrAcct>
          </RltdPties>
          <RmtInf><Ustrd>0014XR6FTTXK5E40JS7FXN6BMWVG0V21A5VXSTM8WWQDH23Q1X4PG</Ustrd></RmtInf>
          <Refs><AcctSvcrRef>BANKREF1</AcctSvcrRef></Refs>
        </TxDtls>
      </NtryDtls>
    </Ntry>
    <Ntry>
      <Sts><Cd>PDNG</Cd></Sts>
      <BookgDt><Dt>2024-05-01</Dt></BookgDt>
      <NtryDtls>
        <TxDtls>
          <Amt Ccy="EUR">5.00</Amt>
          <CdtDbtInd>CRDT</CdtDbtInd>
          <Refs><AcctSvcrRef>BANKREF2</AcctSvcrRef></Refs>
        </TxDtls>
      </NtryDtls>
    </Ntry>
    <Ntry>
      <Sts><Cd>BOOK</Cd></Sts>
      <BookgDt><Dt>2024-05-02</Dt></BookgDt>
      <NtryDtls>
        <TxDtls>
          <Amt Ccy="EUR">20.00</Amt>
          <CdtDbtInd>DBIT</CdtDbtInd>
          <Refs><MsgId>MSG1</MsgId></Refs>
        </TxDtls>
      </NtryDtls>
    </Ntry>
  </Ntfctn>
</Document>`

func TestParseCamt054_OneIncomingOneOutgoingOneSkipped(t *testing.T) {
	result, err := iso20022.ParseCamt054([]byte(camt054Sample), "EUR")
	require.NoError(t, err)

	require.Len(t, result.Incoming, 1)
	assert.Equal(t, "BANKREF1", result.Incoming[0].BankID)
	assert.Equal(t, "payto://iban/DE89370400440532013000", result.Incoming[0].DebtorPayto)
	assert.Contains(t, result.Incoming[0].Subject, "0014XR6FTTXK5E40JS7FXN6BMWVG0V21A5VXSTM8WWQDH23Q1X4PG")

	require.Len(t, result.Outgoing, 1)
	assert.Equal(t, "MSG1", result.Outgoing[0].MessageID)

	assert.Len(t, result.Skipped, 1, "the PDNG entry must be skipped, not emitted")
}

func TestParseCamt054_WrongCurrencySkipsEntry(t *testing.T) {
	result, err := iso20022.ParseCamt054([]byte(camt054Sample), "CHF")
	require.NoError(t, err)
	assert.Empty(t, result.Incoming)
	assert.Empty(t, result.Outgoing)
	assert.NotEmpty(t, result.Skipped)
}
