// Package channels delivers generated content to leads.
package channels

import (
	"context"
	"errors"
	"fmt"

	"nurture_backend/internal/followup/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrChannelUnavailable marks a step whose channel has no dispatcher.
var ErrChannelUnavailable = errors.New("channel unavailable")

// Message is one piece of outreach ready for delivery.
type Message struct {
	EnrollmentID uuid.UUID
	StepID       uuid.UUID
	StepNumber   int
	Lead         domain.LeadContext
	Subject      string
	Body         string
}

// Reference identifies the step delivery towards providers.
func (m Message) Reference() string {
	return fmt.Sprintf("%s:%d", m.EnrollmentID, m.StepNumber)
}

// Receipt describes a completed delivery.
type Receipt struct {
	Channel    domain.StepType
	ProviderID string
	Data       map[string]any
}

// Dispatcher delivers messages over one channel.
type Dispatcher interface {
	Channel() domain.StepType
	Dispatch(ctx context.Context, msg Message) (Receipt, error)
}

// Registry routes messages to the dispatcher of their channel.
type Registry struct {
	dispatchers map[domain.StepType]Dispatcher
}

// NewRegistry creates a registry. Nil dispatchers are skipped.
func NewRegistry(dispatchers ...Dispatcher) *Registry {
	r := &Registry{dispatchers: make(map[domain.StepType]Dispatcher)}
	for _, d := range dispatchers {
		if d != nil {
			r.dispatchers[d.Channel()] = d
		}
	}
	return r
}

// Has reports whether channel can be dispatched.
func (r *Registry) Has(channel domain.StepType) bool {
	_, ok := r.dispatchers[channel]
	return ok
}

// Dispatch delivers msg over channel.
func (r *Registry) Dispatch(ctx context.Context, channel domain.StepType, msg Message) (Receipt, error) {
	d, ok := r.dispatchers[channel]
	if !ok {
		return Receipt{}, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("channel %s is not configured", channel), ErrChannelUnavailable)
	}
	return d.Dispatch(ctx, msg)
}

type limited struct {
	Dispatcher
	limiter *rate.Limiter
}

// Limit throttles a dispatcher to perSecond deliveries with the given burst.
func Limit(d Dispatcher, perSecond float64, burst int) Dispatcher {
	if d == nil || perSecond <= 0 {
		return d
	}
	return &limited{Dispatcher: d, limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))}
}

func (l *limited) Dispatch(ctx context.Context, msg Message) (Receipt, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Receipt{}, apperr.Dependency(fmt.Sprintf("%s rate limit wait aborted", l.Channel()), err)
	}
	return l.Dispatcher.Dispatch(ctx, msg)
}
