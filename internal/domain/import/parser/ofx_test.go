package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240131120000
<LANGUAGE>ENG
<FI>
<ORG>TESTBANK
<FID>1001
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1001
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>1100
<ACCTID>SK3111000000002612345678
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000
<DTEND>20240131120000
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000
<TRNAMT>-12.50
<FITID>TX001
<NAME>FRESH KOSICE
<MEMO>Card payment
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240116120000
<TRNAMT>1500.00
<FITID>TX002
<NAME>EMPLOYER SRO
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1487.50
<DTASOF>20240131120000
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestOFXParser_Parse(t *testing.T) {
	p := NewOFXParser()

	t.Run("bank statement", func(t *testing.T) {
		doc := statement.RawDocument{Filename: "export.ofx", Data: []byte(sampleOFX), AccountHint: "ignored"}

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)

		require.Len(t, result.Candidates, 2)
		assert.True(t, result.Success)
		assert.Equal(t, "1", result.Metadata["statements"])
		assert.Equal(t, "TESTBANK", result.Metadata["institution"])

		debit := result.Candidates[0]
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), debit.Date)
		assert.True(t, dec("-12.50").Equal(debit.Amount.Decimal))
		assert.Equal(t, "EUR", debit.Currency)
		assert.Equal(t, "TX001", debit.Reference)
		assert.Equal(t, "FRESH KOSICE", debit.Merchant)
		assert.Equal(t, "FRESH KOSICE Card payment", debit.Description)
		assert.Equal(t, "SK3111000000002612345678", debit.AccountHint)

		credit := result.Candidates[1]
		assert.Equal(t, 1, credit.Block)
		assert.Equal(t, "EMPLOYER SRO", credit.Description)
		assert.True(t, dec("1500").Equal(credit.Amount.Decimal))
	})

	t.Run("invalid body", func(t *testing.T) {
		doc := statement.RawDocument{Filename: "bad.ofx", Data: []byte("this is not OFX")}

		result, err := p.Parse(context.Background(), doc, generic(t))
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0].Message, "invalid OFX body")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Parse(ctx, statement.RawDocument{Filename: "a.ofx", Data: []byte(sampleOFX)}, generic(t))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
