package stockbookService

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/andmosc/stockbook/utils"
)

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

// WithCloudStorage wires an optional report upload destination.
func (s *StockbookService) WithCloudStorage(storage CloudStorage) *StockbookService {
	s.storage = storage
	return s
}

type Report struct {
	FileBytes    []byte
	Filename     string
	DownloadLink string
}

// ExportReport renders the user's portfolio and transaction history into an
// xlsx workbook. When cloud storage is configured the file is also uploaded
// and the share link returned alongside the bytes.
func (s *StockbookService) ExportReport(ctx context.Context, userID int64) (Report, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "StockbookService.ExportReport"

	slog.Debug("ExportReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ExportReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	positions, err := s.BuildPortfolio(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	history, err := s.repo.GetTransactionsDesc(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTransactionsDesc", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return Report{}, err
	}

	fileBytes, ext, err := s.reports.Generate(ctx, user.Username, positions, history)
	if err != nil {
		slog.Error("got error from reports.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return Report{}, err
	}

	report := Report{
		FileBytes: fileBytes,
		Filename:  fmt.Sprintf("stockbook_%s_%s%s", user.Username, time.Now().Format("2006-01-02"), ext),
	}

	if s.storage != nil {
		link, err := s.storage.UploadFile(ctx, bytes.NewReader(fileBytes), report.Filename)
		if err != nil {
			slog.Error("got error from storage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return Report{}, err
		}
		report.DownloadLink = link
	}

	return report, nil
}

// CleanupReports deletes expired uploads from cloud storage. Runs as a
// scheduled job; a no-op without configured storage.
func (s *StockbookService) CleanupReports(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.DeleteOldFiles(ctx)
}
