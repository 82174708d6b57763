// Package revolutParser turns a Revolut account statement CSV into ledger
// transaction candidates. Kind, quantity, price, fee, date and symbol are
// fully resolved here; the records then flow through the regular
// AddTransaction path.
package revolutParser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/andmosc/stockbook/internal/model"
)

var kindByStatementType = map[string]model.TransactionKind{
	"BUY - MARKET":  model.KindBuy,
	"BUY - LIMIT":   model.KindBuy,
	"SELL - MARKET": model.KindSell,
	"SELL - LIMIT":  model.KindSell,
	"DIVIDEND":      model.KindDividend,
}

// Revolut reports a handful of European listings under bare tickers; the
// ledger stores them exchange-qualified.
var symbolAliases = map[string]string{
	"RHM":  "RHM.DE",
	"M0YN": "M0YN.F",
	"SGM":  "SGM.SG",
	"DAU0": "DAU0.SG",
}

var requiredColumns = []string{"Date", "Ticker", "Type", "Quantity", "Price per share", "Total Amount"}

// Parse reads a statement and returns the resolved transaction candidates
// plus a diagnostic per skipped row. Rows without a ticker or with an
// unknown type are skipped; a missing required column fails the whole parse.
func Parse(r io.Reader) (txs []model.Transaction, skipped []string, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read statement header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	for _, name := range requiredColumns {
		if _, ok := colIdx[name]; !ok {
			return nil, nil, fmt.Errorf("statement is missing column %q", name)
		}
	}

	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read statement row %d: %w", rowNum, err)
		}
		rowNum++

		field := func(name string) string {
			idx := colIdx[name]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		ticker := field("Ticker")
		if ticker == "" {
			skipped = append(skipped, fmt.Sprintf("row %d: missing ticker", rowNum))
			continue
		}

		kind, ok := kindByStatementType[field("Type")]
		if !ok {
			skipped = append(skipped, fmt.Sprintf("row %d: unknown transaction type %q", rowNum, field("Type")))
			continue
		}

		date, err := parseDate(field("Date"))
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d: %s", rowNum, err))
			continue
		}

		totalAmount, err := parseAmount(field("Total Amount"))
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d: bad total amount: %s", rowNum, err))
			continue
		}

		if alias, ok := symbolAliases[ticker]; ok {
			ticker = alias
		}

		tx := model.Transaction{
			Symbol:          ticker,
			Kind:            kind,
			TransactionDate: date,
		}

		if kind == model.KindDividend {
			tx.Quantity = 1
			tx.Pnl = totalAmount
		} else {
			quantity, err := parseAmount(field("Quantity"))
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("row %d: bad quantity: %s", rowNum, err))
				continue
			}
			pricePerShare, err := parseAmount(field("Price per share"))
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("row %d: bad price per share: %s", rowNum, err))
				continue
			}

			tx.Quantity = quantity
			tx.PricePerShare = pricePerShare

			// the statement only carries the total; the fee is whatever
			// the total deviates from quantity x price
			fee := totalAmount - quantity*pricePerShare
			if fee < 0 {
				fee = -fee
			}
			tx.Fee = fee
		}

		txs = append(txs, tx)
	}

	return txs, skipped, nil
}

// parseAmount strips currency symbols and thousands separators before
// parsing, so values like "$1,234.56" resolve to 1234.56.
func parseAmount(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, err
	}

	return v, nil
}

var statementDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts the timestamp formats Revolut has used across statement
// revisions and normalizes to Europe/Berlin.
func parseDate(s string) (time.Time, error) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		loc = time.UTC
	}

	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
