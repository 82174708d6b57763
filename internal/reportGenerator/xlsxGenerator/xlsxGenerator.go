package xlsxGenerator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders a workbook with one positions sheet and one transaction
// history sheet for the user.
func (g *XLSXGenerator) Generate(ctx context.Context, username string, positions []model.SymbolPosition, history []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillPositionsSheet(f, username, positions); err != nil {
		return nil, "", err
	}

	if err := g.fillHistorySheet(f, history); err != nil {
		return nil, "", err
	}

	// drop the default "Sheet1"
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) headerStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
}

func (g *XLSXGenerator) fillPositionsSheet(f *excelize.File, username string, positions []model.SymbolPosition) error {
	sheetName := "Portfolio"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	if err := f.MergeCell(sheetName, "A1", "H1"); err != nil {
		return err
	}

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("Portfolio — %s", username))

	styleID, err := g.headerStyle(f, "#cfe2f3")
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	_ = f.SetCellStr(sheetName, "A2", "symbol")
	_ = f.SetCellStr(sheetName, "B2", "quantity")
	_ = f.SetCellStr(sheetName, "C2", "last price")
	_ = f.SetCellStr(sheetName, "D2", "current value")
	_ = f.SetCellStr(sheetName, "E2", "P/L")
	_ = f.SetCellStr(sheetName, "F2", "realized")
	_ = f.SetCellStr(sheetName, "G2", "unrealized")
	_ = f.SetCellStr(sheetName, "H2", "fees")

	for i, position := range positions {
		row := i + 3
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), position.Symbol)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), position.Quantity)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), position.LastPrice)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), position.CurrentValue)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), position.Pl)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), position.Realized)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), position.Unrealized)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), position.TotalFee)
	}

	return nil
}

func (g *XLSXGenerator) fillHistorySheet(f *excelize.File, history []model.Transaction) error {
	sheetName := "Transactions"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	if err := f.MergeCell(sheetName, "A1", "G1"); err != nil {
		return err
	}

	f.SetCellValue(sheetName, "A1", "Transaction history")

	styleID, err := g.headerStyle(f, "#d9ead3")
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	_ = f.SetCellStr(sheetName, "A2", "symbol")
	_ = f.SetCellStr(sheetName, "B2", "type")
	_ = f.SetCellStr(sheetName, "C2", "quantity")
	_ = f.SetCellStr(sheetName, "D2", "price per share")
	_ = f.SetCellStr(sheetName, "E2", "fee")
	_ = f.SetCellStr(sheetName, "F2", "total cost")
	_ = f.SetCellStr(sheetName, "G2", "date")

	for i, tx := range history {
		row := i + 3
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), tx.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), string(tx.Kind))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), tx.Quantity)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), tx.PricePerShare)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), utils.Round2(tx.Fee))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), utils.Round2(tx.TotalCost))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), tx.TransactionDate)
	}

	return nil
}
