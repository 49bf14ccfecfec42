// Package analytics reports sequence performance per owner.
package analytics

import (
	"context"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Summary is the rollup of an owner's follow-up activity.
type Summary struct {
	TotalEnrollments        int
	ActiveEnrollments       int
	PausedEnrollments       int
	CompletedEnrollments    int
	ConvertedEnrollments    int
	UnsubscribedEnrollments int
	TotalInteractions       int
	FailedInteractions      int
	AverageLeadScore        float64
	ScoredLeads             int
	ConversionRate          float64
}

// Service computes analytics summaries.
type Service struct {
	repo repository.AnalyticsStore
}

// New creates a new analytics service.
func New(repo repository.AnalyticsStore) *Service {
	return &Service{repo: repo}
}

// Summary runs the aggregate queries concurrently and rolls them up.
func (s *Service) Summary(ctx context.Context, ownerID uuid.UUID) (Summary, error) {
	var (
		counts        repository.EnrollmentCounts
		total, failed int
		avgScore      float64
		scored        int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.repo.CountEnrollmentsByStatus(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		total, failed, err = s.repo.CountInteractions(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		avgScore, scored, err = s.repo.AverageLeadScore(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	sum := Rollup(counts)
	sum.TotalInteractions = total
	sum.FailedInteractions = failed
	sum.AverageLeadScore = avgScore
	sum.ScoredLeads = scored
	return sum, nil
}

// Rollup derives enrollment totals and the conversion rate from per-status
// counts. The rate is converted/total, or 0 without enrollments.
func Rollup(counts repository.EnrollmentCounts) Summary {
	sum := Summary{
		ActiveEnrollments:       counts[domain.EnrollmentActive],
		PausedEnrollments:       counts[domain.EnrollmentPaused],
		CompletedEnrollments:    counts[domain.EnrollmentCompleted],
		ConvertedEnrollments:    counts[domain.EnrollmentConverted],
		UnsubscribedEnrollments: counts[domain.EnrollmentUnsubscribed],
	}
	for _, n := range counts {
		sum.TotalEnrollments += n
	}
	if sum.TotalEnrollments > 0 {
		sum.ConversionRate = float64(sum.ConvertedEnrollments) / float64(sum.TotalEnrollments)
	}
	return sum
}
