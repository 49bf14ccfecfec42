package repository

import (
	"context"
	"errors"
	"fmt"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetLeadContext reads a lead and the listing it inquired about from the
// host application's tables.
func (r *Repo) GetLeadContext(ctx context.Context, leadID uuid.UUID) (domain.LeadContext, error) {
	var (
		lc             domain.LeadContext
		email, phone   *string
		source, notes  *string
		listingID      *uuid.UUID
		title, address *string
		price          *float64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT l.id, l.owner_id, l.name, l.email, l.phone, l.source, l.notes,
		       li.id, li.title, li.address, li.price
		FROM leads l
		LEFT JOIN listings li ON li.id = l.listing_id
		WHERE l.id = $1`, leadID,
	).Scan(&lc.ID, &lc.OwnerID, &lc.Name, &email, &phone, &source, &notes, &listingID, &title, &address, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeadContext{}, apperr.NotFound(leadNotFoundMsg)
		}
		return domain.LeadContext{}, fmt.Errorf("get lead context: %w", err)
	}

	lc.Email = deref(email)
	lc.Phone = deref(phone)
	lc.Source = deref(source)
	lc.Notes = deref(notes)
	if listingID != nil {
		lc.Listing = &domain.Listing{ID: *listingID, Title: deref(title), Address: deref(address), Price: price}
	}
	return lc, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
