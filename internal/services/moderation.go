package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

// ReportInput describes an abuse report. At least one target is required.
type ReportInput struct {
	ReporterID   string
	Reason       string
	TargetUserID string
	TargetPostID string
}

// ModerationService files reports and lets admins review them.
type ModerationService struct {
	identity *IdentityService
	reports  *store.Collection[models.Report]
	now      func() time.Time
	log      *logrus.Entry
}

// CreateReport files an open report.
func (s *ModerationService) CreateReport(ctx context.Context, in ReportInput) (report models.Report, err error) {
	defer func() { metrics.RecordOperation("create_report", err) }()

	in.ReporterID = strings.TrimSpace(in.ReporterID)
	in.Reason = strings.TrimSpace(in.Reason)
	in.TargetUserID = strings.TrimSpace(in.TargetUserID)
	in.TargetPostID = strings.TrimSpace(in.TargetPostID)

	if in.ReporterID == "" {
		return models.Report{}, invalid("reporter_id", "Reporter is required")
	}
	if in.Reason == "" {
		return models.Report{}, invalid("reason", "Reason is required")
	}
	if in.TargetUserID == "" && in.TargetPostID == "" {
		return models.Report{}, invalid("target", "Report a user or a post")
	}
	if err := checkText("reason", in.Reason); err != nil {
		return models.Report{}, err
	}
	if err := checkText("target", in.ReporterID, in.TargetUserID, in.TargetPostID); err != nil {
		return models.Report{}, err
	}

	now := s.now()
	report = models.Report{
		ID:           newID(),
		ReporterID:   in.ReporterID,
		TargetUserID: in.TargetUserID,
		TargetPostID: in.TargetPostID,
		Reason:       in.Reason,
		Status:       models.ReportOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.reports.Update(ctx, func(reports []models.Report) ([]models.Report, error) {
		return append([]models.Report{report}, reports...), nil
	})
	if err != nil {
		return models.Report{}, err
	}

	s.log.WithFields(logrus.Fields{
		"report_id":      report.ID,
		"reporter_id":    report.ReporterID,
		"target_user_id": report.TargetUserID,
		"target_post_id": report.TargetPostID,
	}).Warn("report filed")
	return report, nil
}

// ListReports returns every report, most recent first. Admins only.
func (s *ModerationService) ListReports(ctx context.Context, sess Session) ([]models.Report, error) {
	if _, err := s.identity.RequireAdmin(ctx, sess); err != nil {
		return nil, err
	}
	reports, err := s.reports.All(ctx)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return reports, nil
}

// CloseReport marks a report closed. Closing a closed report is a no-op.
func (s *ModerationService) CloseReport(ctx context.Context, sess Session, id string) (report models.Report, err error) {
	defer func() { metrics.RecordOperation("close_report", err) }()

	admin, err := s.identity.RequireAdmin(ctx, sess)
	if err != nil {
		return models.Report{}, err
	}

	_, err = s.reports.Update(ctx, func(reports []models.Report) ([]models.Report, error) {
		for i := range reports {
			if reports[i].ID != id {
				continue
			}
			r := &reports[i]
			if r.Status == models.ReportClosed {
				report = *r
				return nil, errNoChange
			}
			r.Status = models.ReportClosed
			r.UpdatedAt = s.now()
			report = *r
			return reports, nil
		}
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	})
	if errors.Is(err, errNoChange) {
		return report, nil
	}
	if err != nil {
		return models.Report{}, err
	}

	s.log.WithFields(logrus.Fields{
		"report_id": report.ID,
		"closed_by": admin.ID,
	}).Info("report closed")
	return report, nil
}
