package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// OFXParser reads OFX 1.x (SGML) and 2.x (XML) bank and credit card
// statements, including Quicken .qfx downloads.
type OFXParser struct{}

// NewOFXParser creates an OFX parser.
func NewOFXParser() *OFXParser { return &OFXParser{} }

func (p *OFXParser) Descriptor() statement.Descriptor { return OFXDescriptor }

// ofxStatement is the part of a bank or card statement response this parser
// reads.
type ofxStatement struct {
	account  string
	currency string
	list     *ofxgo.TransactionList
}

// Parse maps every transaction of every statement in the response. A body
// ofxgo cannot read is a structural error of the whole document.
func (p *OFXParser) Parse(ctx context.Context, doc statement.RawDocument, cfg *bankconfig.Compiled) (*statement.ParseResult, error) {
	if err := checkInput(ctx, doc, cfg); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(bytes.NewReader(doc.Data))
	if err != nil {
		return documentFailure(statement.FormatOFX, cfg, fmt.Errorf("invalid OFX body: %w", err)), nil
	}

	var stmts []ofxStatement
	for _, msg := range resp.Bank {
		if s, ok := msg.(*ofxgo.StatementResponse); ok {
			stmts = append(stmts, ofxStatement{
				account:  s.BankAcctFrom.AcctID.String(),
				currency: s.CurDef.String(),
				list:     s.BankTranList,
			})
		}
	}
	for _, msg := range resp.CreditCard {
		if s, ok := msg.(*ofxgo.CCStatementResponse); ok {
			stmts = append(stmts, ofxStatement{
				account:  s.CCAcctFrom.AcctID.String(),
				currency: s.CurDef.String(),
				list:     s.BankTranList,
			})
		}
	}

	result := statement.NewParseResult(statement.FormatOFX)
	block := 0
	for _, s := range stmts {
		if s.list == nil {
			continue
		}
		for _, txn := range s.list.Transactions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.Append(ofxCandidate(txn, s, block, doc.AccountHint, cfg))
			block++
		}
	}
	if len(stmts) == 0 {
		result.AddWarning(-1, 0, "OFX response contains no bank or credit card statement", "")
	}
	result.Metadata["statements"] = strconv.Itoa(len(stmts))
	result.Metadata["bank_config"] = cfg.Name()
	if org := resp.Signon.Org.String(); org != "" {
		result.Metadata["institution"] = org
	}
	return result.Finalize(), nil
}

func ofxCandidate(txn ofxgo.Transaction, s ofxStatement, block int, accountHint string, cfg *bankconfig.Compiled) statement.Candidate {
	name := strings.TrimSpace(txn.Name.String())
	memo := strings.TrimSpace(txn.Memo.String())

	c := statement.Candidate{
		Block:       block,
		Description: coalesce(memo, name),
		Merchant:    name,
		Reference:   txn.FiTID.String(),
		AccountHint: coalesce(s.account, accountHint),
		Currency:    coalesce(s.currency, cfg.Currency),
		RawLines:    []string{strings.TrimSpace(fmt.Sprintf("%s %s %s %s", txn.FiTID, txn.TrnType, name, memo))},
	}
	if memo != "" && name != "" && !strings.Contains(memo, name) {
		c.Description = name + " " + memo
	}
	if txn.Currency != nil && txn.Currency.CurSym.String() != "" {
		c.Currency = txn.Currency.CurSym.String()
	}

	date := txn.DtPosted.Time
	if date.IsZero() && txn.DtUser != nil {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		c.AddFieldError(bankconfig.GroupDate, "", fmt.Errorf("%w: transaction has neither DTPOSTED nor DTUSER", ErrInvalidDate))
	} else {
		y, m, d := date.Date()
		c.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	raw := txn.TrnAmt.Rat.FloatString(6)
	if amount, err := decimal.NewFromString(raw); err != nil {
		c.AddFieldError(bankconfig.GroupAmount, raw, err)
	} else {
		c.Amount = decimal.NewNullDecimal(amount)
	}
	return c
}
