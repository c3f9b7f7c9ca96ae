package iso20022_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/iso20022"
)

const hacSample = `<Document>
  <CstmrPmtStsRpt>
    <OrgnlPmtInfAndSts>
      <OrgnlPmtInfId>ORDER123</OrgnlPmtInfId>
      <PmtInfSts>ORDER_HAC_FINAL_POS</PmtInfSts>
      <Orgtr>
        <Id><OrgId><Othr>
          <Id>TimeStamp</Id>
          <SchmeNm><Prtry>2024-05-01T12:00:00Z</Prtry></SchmeNm>
        </Othr></OrgId></Id>
      </Orgtr>
    </OrgnlPmtInfAndSts>
  </CstmrPmtStsRpt>
</Document>`

func TestParseHAC(t *testing.T) {
	acks, err := iso20022.ParseHAC([]byte(hacSample))
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, iso20022.ActionOrderHACFinalPos, acks[0].Action)
	require.NotNil(t, acks[0].OrderID)
	assert.Equal(t, "ORDER123", *acks[0].OrderID)
	assert.Equal(t, 2024, acks[0].Timestamp.Year())
}

const paymentStatusSample = `<Document>
  <CstmrPmtStsRpt>
    <OrgnlGrpInfAndSts>
      <OrgnlMsgId>MSG1</OrgnlMsgId>
      <GrpSts>ACTC</GrpSts>
    </OrgnlGrpInfAndSts>
    <OrgnlPmtInfAndSts>
      <OrgnlPmtInfId>PMT1</OrgnlPmtInfId>
      <TxInfAndSts>
        <OrgnlTxId>TX1</OrgnlTxId>
        <TxSts>RJCT</TxSts>
        <StsRsnInf><Rsn><Cd>AC04</Cd></Rsn></StsRsnInf>
      </TxInfAndSts>
    </OrgnlPmtInfAndSts>
  </CstmrPmtStsRpt>
</Document>`

func TestParsePaymentStatus_TxLevelOverridesMessageLevel(t *testing.T) {
	statuses, err := iso20022.ParsePaymentStatus([]byte(paymentStatusSample))
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	s := statuses[0]
	assert.Equal(t, "MSG1", s.MsgID)
	require.NotNil(t, s.TxID)
	assert.Equal(t, "TX1", *s.TxID)
	assert.Equal(t, "RJCT", s.EffectiveCode())
	assert.Equal(t, []string{"AC04"}, s.Reasons)
}
