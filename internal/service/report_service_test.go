package service

import (
	"context"
	"errors"
	"testing"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
)

func newReportService(t *testing.T) (ReportService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	if err := env.conn.AutoMigrate(&model.Report{}); err != nil {
		t.Fatalf("migrate reports: %v", err)
	}
	svc := NewReportService(repository.NewReportRepository(env.conn), repository.NewListingRepository(env.conn))
	return svc, env
}

func TestFileReport_DuplicateRejected(t *testing.T) {
	svc, env := newReportService(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")

	first, err := svc.File(ctx, listing.ID, "reporter-1", "counterfeit goods")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if first.Status != model.ReportOpen {
		t.Errorf("new report should be open, got %q", first.Status)
	}

	if _, err := svc.File(ctx, listing.ID, "reporter-1", "still counterfeit"); !errors.Is(err, ErrDuplicateReport) {
		t.Errorf("expected ErrDuplicateReport, got %v", err)
	}
	// A different reporter on the same listing is fine.
	if _, err := svc.File(ctx, listing.ID, "reporter-2", "me too"); err != nil {
		t.Errorf("second reporter should succeed: %v", err)
	}
}

func TestFileReport_Validation(t *testing.T) {
	svc, env := newReportService(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")

	if _, err := svc.File(ctx, listing.ID, "reporter-1", "   "); err == nil {
		t.Errorf("blank reason must be rejected")
	}
	if _, err := svc.File(ctx, 9999, "reporter-1", "scam"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown listing, got %v", err)
	}
}

func TestResolveReport(t *testing.T) {
	svc, env := newReportService(t)
	ctx := context.Background()
	listing := env.seedListing(t, "seller-1")

	report, _ := svc.File(ctx, listing.ID, "reporter-1", "spam")
	if err := svc.Resolve(ctx, report.ID, "admin-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	open, err := svc.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("resolved report must leave the open queue, got %d", len(open))
	}
	if err := svc.Resolve(ctx, 9999, "admin-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
