package amount_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/amount"
)

func TestParsePayto_WithBIC(t *testing.T) {
	p, err := amount.ParsePayto("payto://iban/GENODEM1GLS/DE89370400440532013000?receiver-name=Test+GmbH")
	require.NoError(t, err)
	assert.Equal(t, "GENODEM1GLS", p.BIC)
	assert.Equal(t, "DE89370400440532013000", p.IBAN)
	assert.Equal(t, "Test GmbH", p.ReceiverName)
}

func TestParsePayto_WithoutBIC(t *testing.T) {
	p, err := amount.ParsePayto("payto://iban/DE89370400440532013000")
	require.NoError(t, err)
	assert.Equal(t, "", p.BIC)
	assert.Equal(t, "DE89370400440532013000", p.IBAN)
}

func TestParsePayto_RejectsWrongScheme(t *testing.T) {
	_, err := amount.ParsePayto("http://iban/DE89370400440532013000")
	assert.Error(t, err)
}

func TestParsePayto_AcceptsShortBICSegment(t *testing.T) {
	p, err := amount.ParsePayto("payto://iban/BIC123/CH9300762011623852957?receiver-name=The%20Name")
	require.NoError(t, err)
	assert.Equal(t, "BIC123", p.BIC)
	assert.Equal(t, "CH9300762011623852957", p.IBAN)
	assert.Equal(t, "The Name", p.ReceiverName)
	assert.Equal(t, "payto://iban/CH9300762011623852957", p.String())
}

func TestPayto_StringDropsBIC(t *testing.T) {
	p := amount.Payto{BIC: "GENODEM1GLS", IBAN: "DE89370400440532013000", ReceiverName: "Test GmbH"}
	assert.Equal(t, "payto://iban/DE89370400440532013000", p.String())

	reparsed, err := amount.ParsePayto(p.String())
	require.NoError(t, err)
	assert.Equal(t, "", reparsed.BIC)
	assert.Equal(t, p.IBAN, reparsed.IBAN)
	assert.Equal(t, "", reparsed.ReceiverName)
}
