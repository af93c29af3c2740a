package service

import (
	"context"
	"errors"
	"strings"

	"github.com/loopmarket/backend/internal/model"
	"github.com/loopmarket/backend/internal/repository"
	"gorm.io/gorm"
)

type ReportService interface {
	File(ctx context.Context, listingID uint64, reporterUID, reason string) (*model.Report, error)
	ListOpen(ctx context.Context, limit int) ([]model.Report, error)
	Resolve(ctx context.Context, id uint64, resolverUID string) error
}

type reportService struct {
	repo        repository.ReportRepository
	listingRepo repository.ListingRepository
}

func NewReportService(repo repository.ReportRepository, listingRepo repository.ListingRepository) ReportService {
	return &reportService{repo: repo, listingRepo: listingRepo}
}

func (s *reportService) File(ctx context.Context, listingID uint64, reporterUID, reason string) (*model.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New("reason is required")
	}
	if _, err := s.listingRepo.FindByID(ctx, listingID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.repo.FindByListingAndReporter(ctx, listingID, reporterUID); err == nil {
		return nil, ErrDuplicateReport
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	report := &model.Report{
		ListingID:   listingID,
		ReporterUID: reporterUID,
		Reason:      reason,
		Status:      model.ReportOpen,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		// The unique index may still fire under a concurrent double-submit.
		return nil, ErrDuplicateReport
	}
	return report, nil
}

func (s *reportService) ListOpen(ctx context.Context, limit int) ([]model.Report, error) {
	return s.repo.ListByStatus(ctx, model.ReportOpen, limit)
}

func (s *reportService) Resolve(ctx context.Context, id uint64, resolverUID string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.repo.Resolve(ctx, id, resolverUID)
}
