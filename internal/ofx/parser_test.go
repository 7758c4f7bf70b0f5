package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
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
<DTSERVER>20260315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20260101120000[0:GMT]
<DTEND>20260131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20260115120000[0:GMT]
<TRNAMT>-1250.00
<FITID>2026011501
<NAME>ACME CORP INV PAYMENT
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20260120120000[0:GMT]
<TRNAMT>-35.00
<FITID>2026012001
<NAME>MONTHLY SERVICE FEE
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20260125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2026012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20260131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
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
<DTSERVER>20260315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20260101120000[0:GMT]
<DTEND>20260131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20260110120000[0:GMT]
<TRNAMT>-89.99
<FITID>CC2026011001
<NAME>GLOBEX CLOUD SERVICES
</STMTTRN>
</BANKTRANLIST>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParser_ParseFile_BankStatement(t *testing.T) {
	p := NewParser()

	candidates, err := p.ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	first := candidates[0]
	assert.Equal(t, "2026011501", first.ID)
	assert.Equal(t, "ACME CORP INV PAYMENT", first.VendorName)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("1250.00")),
		"debits carry magnitudes, got %s", first.Amount)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "1234567890", first.AccountID)
	assert.Equal(t, "Uncategorized", first.Category)
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), first.Date)

	fee := candidates[1]
	assert.Equal(t, "Bank Fees", fee.Category)
	assert.True(t, fee.Amount.Equal(decimal.RequireFromString("35.00")))

	check := candidates[2]
	assert.Equal(t, "1234", check.InvoiceRef, "CHECKNUM doubles as invoice reference")
}

func TestParser_ParseFile_CreditCardStatement(t *testing.T) {
	p := NewParser()

	candidates, err := p.ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal(t, "CC2026011001", cand.ID)
	assert.Equal(t, "GLOBEX CLOUD SERVICES", cand.VendorName)
	assert.True(t, cand.Amount.Equal(decimal.RequireFromString("89.99")))
	assert.Equal(t, "4111111111111111", cand.AccountID)
}

func TestParser_ParseFile_InvalidData(t *testing.T) {
	p := NewParser()

	_, err := p.ParseFile(context.Background(), strings.NewReader("not an ofx file"))
	assert.Error(t, err)
}

func TestPreprocessOFX(t *testing.T) {
	p := NewParser()

	t.Run("uppercases severity", func(t *testing.T) {
		out := p.preprocessOFX("<SEVERITY>Info</SEVERITY>")
		assert.Equal(t, "<SEVERITY>INFO</SEVERITY>", out)
	})

	t.Run("closes truncated sgml tags", func(t *testing.T) {
		out := p.preprocessOFX("<OFX>\n<SONRS\n</OFX>")
		assert.Contains(t, out, "<SONRS>")
	})

	t.Run("trims leading whitespace", func(t *testing.T) {
		out := p.preprocessOFX("\n\n  OFXHEADER:100")
		assert.True(t, strings.HasPrefix(out, "OFXHEADER"))
	})
}

func TestExtractVendorName(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		tx   ofxgo.Transaction
		want string
	}{
		{
			name: "payee preferred over name",
			tx: ofxgo.Transaction{
				Name:  "POS 1234",
				Payee: &ofxgo.Payee{Name: "Initech Supplies"},
			},
			want: "Initech Supplies",
		},
		{
			name: "memo replaces generic name",
			tx: ofxgo.Transaction{
				Name: "DEBIT",
				Memo: "Hooli Hosting",
			},
			want: "Hooli Hosting",
		},
		{
			name: "bank prefix stripped",
			tx:   ofxgo.Transaction{Name: "POS PURCHASE ACME CORP"},
			want: "ACME CORP",
		},
		{
			name: "leading date fragment stripped",
			tx:   ofxgo.Transaction{Name: "01/15 ACME CORP"},
			want: "ACME CORP",
		},
		{
			name: "plain name passes through",
			tx:   ofxgo.Transaction{Name: "Acme Corporation"},
			want: "Acme Corporation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.extractVendorName(tt.tx))
		})
	}
}

func TestCategoryForType(t *testing.T) {
	assert.Equal(t, "Interest Income", categoryForType("INT"))
	assert.Equal(t, "Bank Fees", categoryForType("FEE"))
	assert.Equal(t, "Bank Fees", categoryForType("SRVCHG"))
	assert.Equal(t, "Cash & ATM", categoryForType("ATM"))
	assert.Equal(t, "Uncategorized", categoryForType("DEBIT"))
	assert.Equal(t, "Uncategorized", categoryForType("CHECK"))
}
