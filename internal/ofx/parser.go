package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/ledgerlink/ledgerlink/internal/model"
)

// Parser reads OFX/QFX ledger exports into candidate transactions.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// Fix mixed-case SEVERITY values (should be INFO, WARN, or ERROR)
	severityRegex := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRegex.ReplaceAllStringFunc(content, func(match string) string {
		return strings.ToUpper(match)
	})

	// Fix missing closing angle brackets in SGML-style OFX files
	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// ParseFile parses an OFX/QFX file and returns candidate transactions.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.CandidateTransaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var candidates []model.CandidateTransaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			accountID := string(stmt.BankAcctFrom.AcctID)
			currency := currencyOf(stmt.CurDef)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				candidates = append(candidates, p.convertTransaction(ofxTx, accountID, currency))
			}
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			accountID := string(stmt.CCAcctFrom.AcctID)
			currency := currencyOf(stmt.CurDef)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				candidates = append(candidates, p.convertTransaction(ofxTx, accountID, currency))
			}
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(candidates),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return candidates, nil
}

// convertTransaction converts an OFX transaction into a candidate.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID, currency string) model.CandidateTransaction {
	// OFX uses negative amounts for debits; candidates carry magnitudes.
	amount := decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2).Abs()

	cand := model.CandidateTransaction{
		ID:         string(ofxTx.FiTID),
		Date:       ofxTx.DtPosted.Time.UTC(),
		VendorName: p.extractVendorName(ofxTx),
		Amount:     amount,
		Currency:   currency,
		AccountID:  accountID,
		Category:   categoryForType(fmt.Sprintf("%v", ofxTx.TrnType)),
		ImportedAt: time.Now().UTC(),
	}

	// CHECKNUM or REFNUM doubles as an invoice reference when present.
	if ofxTx.CheckNum != "" {
		cand.InvoiceRef = string(ofxTx.CheckNum)
	} else if ofxTx.RefNum != "" {
		cand.InvoiceRef = string(ofxTx.RefNum)
	}

	return cand
}

// categoryForType infers a ledger category from the OFX transaction type.
// Most types carry no categorical signal and stay uncategorized until a
// human correction teaches the model otherwise.
func categoryForType(trnType string) string {
	switch trnType {
	case "INT":
		return "Interest Income"
	case "FEE", "SRVCHG":
		return "Bank Fees"
	case "ATM":
		return "Cash & ATM"
	default:
		return "Uncategorized"
	}
}

func currencyOf(cur ofxgo.CurrSymbol) string {
	s := strings.ToUpper(strings.TrimSpace(cur.String()))
	if s == "" {
		return "USD"
	}
	return s
}

// extractVendorName tries to get a clean vendor name from OFX data.
func (p *Parser) extractVendorName(tx ofxgo.Transaction) string {
	// Prefer PAYEE if available (cleaner merchant name)
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)

	// Sometimes MEMO has better merchant info
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}

	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Strip leading "MM/DD " date fragments some banks prepend
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}

	upperName := strings.ToUpper(name)
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}
