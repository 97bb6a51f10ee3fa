// Package dashboard serves the operator's read-only view of verification records.
package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200

	exportPageSize = 500
	exportLinkTTL  = 15 * time.Minute
)

// Reader is the read side of the verification store.
type Reader interface {
	List(ctx context.Context, f domain.ListFilter) ([]domain.VerificationRecord, string, error)
	Stats(ctx context.Context) (*domain.VerificationStats, error)
}

// Exporter stores export files and hands out download links.
type Exporter interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Page struct {
	Data       []domain.VerificationRecord `json:"data"`
	NextCursor string                      `json:"nextCursor,omitempty"`
}

type Export struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type Service interface {
	List(ctx context.Context, status string, limit int, cursor string) (*Page, error)
	Stats(ctx context.Context) (*domain.VerificationStats, error)
	Export(ctx context.Context, status string) (*Export, error)
}

type service struct {
	reader   Reader
	exporter Exporter
}

// NewService builds the dashboard. exporter may be nil, in which case Export
// reports domain.ErrUnavailable.
func NewService(reader Reader, exporter Exporter) Service {
	return &service{reader: reader, exporter: exporter}
}

func parseStatus(s string) (domain.VerificationStatus, error) {
	st, ok := domain.ParseVerificationStatus(s)
	if !ok {
		return "", fmt.Errorf("status must be one of all, verified, unverified: %w", domain.ErrBadRequest)
	}
	return st, nil
}

func (s *service) List(ctx context.Context, status string, limit int, cursor string) (*Page, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	recs, next, err := s.reader.List(ctx, domain.ListFilter{Status: st, Limit: limit, Cursor: cursor})
	if err != nil {
		return nil, storageErr("list verifications", err)
	}
	if recs == nil {
		recs = []domain.VerificationRecord{}
	}
	return &Page{Data: recs, NextCursor: next}, nil
}

func (s *service) Stats(ctx context.Context) (*domain.VerificationStats, error) {
	st, err := s.reader.Stats(ctx)
	if err != nil {
		return nil, storageErr("verification stats", err)
	}
	return st, nil
}

func (s *service) Export(ctx context.Context, status string) (*Export, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("export storage not configured: %w", domain.ErrUnavailable)
	}
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	n, err := s.writeCSV(ctx, &buf, st)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("exports/verifications-%s.csv", id.New())
	if _, err := s.exporter.Upload(ctx, key, &buf, "text/csv"); err != nil {
		slog.Error("upload export", "key", key, "err", err)
		return nil, fmt.Errorf("upload export: %w", domain.ErrStorage)
	}
	url, err := s.exporter.PresignedURL(ctx, key, exportLinkTTL)
	if err != nil {
		slog.Warn("presign export", "key", key, "err", err)
	}
	slog.Info("verifications exported", "key", key, "count", n, "status", st)
	return &Export{Key: key, URL: url, Count: n}, nil
}

var csvHeader = []string{"id", "phone_number", "name", "verified", "created_at", "expires_at", "verified_at"}

// writeCSV pages through every record matching st and writes one row each.
func (s *service) writeCSV(ctx context.Context, w io.Writer, st domain.VerificationStatus) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	n := 0
	cursor := ""
	for {
		recs, next, err := s.reader.List(ctx, domain.ListFilter{Status: st, Limit: exportPageSize, Cursor: cursor})
		if err != nil {
			return 0, storageErr("list verifications for export", err)
		}
		for _, r := range recs {
			if err := cw.Write(csvRow(r)); err != nil {
				return 0, err
			}
			n++
		}
		// a filtered page may be empty and still carry a cursor
		if next == "" {
			break
		}
		cursor = next
	}
	cw.Flush()
	return n, cw.Error()
}

func csvRow(r domain.VerificationRecord) []string {
	verifiedAt := ""
	if r.VerifiedAt != nil {
		verifiedAt = r.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.PhoneNumber,
		r.Name,
		strconv.FormatBool(r.Verified),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.ExpiresAt.UTC().Format(time.RFC3339),
		verifiedAt,
	}
}

// storageErr keeps caller-facing errors generic. Bad cursors stay 400.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrBadRequest) {
		return err
	}
	slog.Error(op, "err", err)
	return fmt.Errorf("%s: %w", op, domain.ErrStorage)
}
