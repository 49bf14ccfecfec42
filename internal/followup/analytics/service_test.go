package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/internal/followup/followuptest"
	"nurture_backend/internal/followup/repository"

	"github.com/google/uuid"
)

func TestRollupConversionRate(t *testing.T) {
	sum := Rollup(repository.EnrollmentCounts{
		domain.EnrollmentActive:    3,
		domain.EnrollmentCompleted: 2,
		domain.EnrollmentConverted: 1,
	})
	if sum.TotalEnrollments != 6 {
		t.Fatalf("expected 6 enrollments, got %d", sum.TotalEnrollments)
	}
	if math.Abs(sum.ConversionRate-1.0/6.0) > 1e-9 {
		t.Fatalf("expected conversion rate 1/6, got %f", sum.ConversionRate)
	}
}

func TestRollupWithoutEnrollments(t *testing.T) {
	sum := Rollup(repository.EnrollmentCounts{})
	if sum.TotalEnrollments != 0 || sum.ConversionRate != 0 {
		t.Fatalf("expected empty rollup, got %+v", sum)
	}
}

func TestSummaryAggregatesOwnerData(t *testing.T) {
	store := followuptest.NewStore()
	owner := uuid.New()
	seq, _ := store.AddSequence(owner, domain.TriggerLeadCapture)
	other, _ := store.AddSequence(uuid.New(), domain.TriggerLeadCapture)

	leads := []uuid.UUID{uuid.New(), uuid.New()}
	statuses := []domain.EnrollmentStatus{domain.EnrollmentActive, domain.EnrollmentConverted}
	for i, lead := range leads {
		e := domain.LeadFollowup{ID: uuid.New(), LeadID: lead, SequenceID: seq.ID, Status: statuses[i]}
		store.Enrollments[e.ID] = e
		store.Interactions = append(store.Interactions, domain.FollowupInteraction{ID: uuid.New(), LeadFollowupID: e.ID, Status: domain.InteractionSent})
	}
	foreign := domain.LeadFollowup{ID: uuid.New(), LeadID: uuid.New(), SequenceID: other.ID, Status: domain.EnrollmentConverted}
	store.Enrollments[foreign.ID] = foreign
	store.Scores[leads[0]] = domain.AILeadScoring{LeadID: leads[0], Score: 80}
	store.Scores[leads[1]] = domain.AILeadScoring{LeadID: leads[1], Score: 60}

	sum, err := New(store).Summary(context.Background(), owner)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalEnrollments != 2 || sum.ConvertedEnrollments != 1 || sum.ConversionRate != 0.5 {
		t.Fatalf("unexpected enrollment rollup %+v", sum)
	}
	if sum.TotalInteractions != 2 || sum.FailedInteractions != 0 {
		t.Fatalf("unexpected interaction counts %+v", sum)
	}
	if sum.AverageLeadScore != 70 || sum.ScoredLeads != 2 {
		t.Fatalf("unexpected score average %+v", sum)
	}
}

type failingStore struct{ repository.AnalyticsStore }

func (failingStore) CountEnrollmentsByStatus(context.Context, uuid.UUID) (repository.EnrollmentCounts, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) CountInteractions(context.Context, uuid.UUID) (int, int, error) { return 0, 0, nil }

func (failingStore) AverageLeadScore(context.Context, uuid.UUID) (float64, int, error) { return 0, 0, nil }

func TestSummaryPropagatesQueryErrors(t *testing.T) {
	if _, err := New(failingStore{}).Summary(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}
