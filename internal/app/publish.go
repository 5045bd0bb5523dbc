package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"replydesk/internal/adapters/observability"
	"replydesk/internal/domain"
)

// PublishOutcome makes publish failure explicit in the return value; callers
// must look at Published instead of assuming optimistic success.
type PublishOutcome struct {
	Published bool   `json:"published"`
	ViaAPI    bool   `json:"viaApi"`
	Message   string `json:"message"`
	Warning   string `json:"warning,omitempty"`
}

// Publisher drives an approved review's response out to its platform. It acts
// only on reviews in approved or failed status; the status-guarded claim is
// what keeps two concurrent attempts from both writing to the platform.
type Publisher struct {
	repo     domain.ReviewRepository
	adapters AdapterRegistry
}

func NewPublisher(repo domain.ReviewRepository, adapters AdapterRegistry) *Publisher {
	return &Publisher{repo: repo, adapters: adapters}
}

// Publish attempts an automated publish of text as the response to reviewID.
//
// The claim (TransitionStatus approved|failed -> published) happens before
// the platform write: the loser of a concurrent race gets ErrStaleTransition
// and never touches the platform. If the platform then rejects the write, the
// claim holder compensates via MarkPublishFailed and the review stays
// actionable for the operator.
func (p *Publisher) Publish(ctx context.Context, reviewID int64, text string) (PublishOutcome, error) {
	rv, err := p.repo.GetReview(ctx, reviewID)
	if err != nil {
		return PublishOutcome{}, err
	}
	if rv.Status != domain.StatusApproved && rv.Status != domain.StatusFailed {
		return PublishOutcome{}, fmt.Errorf("%w: review %d is %s, not approved", domain.ErrStaleTransition, reviewID, rv.Status)
	}
	if text == "" {
		text = deref(rv.DraftResponse)
	}

	now := time.Now().UTC()
	extra := domain.TransitionExtra{FinalResponse: &text, RespondedAt: &now}

	ad, ok := p.adapters.Get(rv.Platform)
	if !ok || !ad.CanPublish() {
		// deliberate escape hatch: record the response and let the operator
		// post it on the platform's own UI
		if err := p.repo.TransitionStatus(ctx, reviewID, rv.Status, domain.StatusPublished, extra); err != nil {
			return PublishOutcome{}, err
		}
		observability.ObservePublish(string(rv.Platform), "manual")
		return PublishOutcome{
			Published: true,
			ViaAPI:    false,
			Message:   "response recorded",
			Warning:   fmt.Sprintf("%s has no reply API; post the response manually on the platform", rv.Platform),
		}, nil
	}

	conn, err := p.connection(ctx, rv.BusinessID, rv.Platform)
	if err != nil {
		return PublishOutcome{}, err
	}

	// claim first; exactly one concurrent caller survives this line
	if err := p.repo.TransitionStatus(ctx, reviewID, rv.Status, domain.StatusPublished, extra); err != nil {
		return PublishOutcome{}, err
	}

	if err := ad.PublishReply(ctx, conn, rv.PlatformReviewID, text); err != nil {
		log.Warn().Err(err).
			Int64("review", reviewID).
			Str("platform", string(rv.Platform)).
			Msg("platform rejected reply")
		if cerr := p.repo.MarkPublishFailed(ctx, reviewID, err.Error()); cerr != nil {
			return PublishOutcome{}, fmt.Errorf("publish failed (%v) and compensation failed: %w", err, cerr)
		}
		observability.ObservePublish(string(rv.Platform), "failed")
		return PublishOutcome{
			Published: false,
			ViaAPI:    true,
			Message:   fmt.Sprintf("publish failed: %v", err),
		}, nil
	}

	observability.ObservePublish(string(rv.Platform), "api")
	return PublishOutcome{Published: true, ViaAPI: true, Message: "response published"}, nil
}

func (p *Publisher) connection(ctx context.Context, businessID int64, platform domain.Platform) (domain.PlatformConnection, error) {
	conns, err := p.repo.ListConnections(ctx, businessID)
	if err != nil {
		return domain.PlatformConnection{}, err
	}
	for _, c := range conns {
		if c.Platform == platform {
			return c, nil
		}
	}
	return domain.PlatformConnection{}, fmt.Errorf("%w: no enabled %s connection for business %d", domain.ErrNotFound, platform, businessID)
}

// SaveDraft attaches response text to a pending review (pending ->
// ai_generated) or refreshes the draft on one that already has a draft.
func (p *Publisher) SaveDraft(ctx context.Context, reviewID int64, text string) error {
	rv, err := p.repo.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	extra := domain.TransitionExtra{DraftResponse: &text}
	switch rv.Status {
	case domain.StatusPending:
		return p.repo.TransitionStatus(ctx, reviewID, domain.StatusPending, domain.StatusAIGenerated, extra)
	case domain.StatusAIGenerated:
		// same-state refresh rides the guarded update with from == to;
		// staleness still surfaces if the review moved on concurrently
		return p.repo.TransitionStatus(ctx, reviewID, domain.StatusAIGenerated, domain.StatusAIGenerated, extra)
	default:
		return fmt.Errorf("%w: review %d is %s", domain.ErrStaleTransition, reviewID, rv.Status)
	}
}

// Approve moves a review to approved, optionally replacing the draft.
func (p *Publisher) Approve(ctx context.Context, reviewID int64, draft *string) error {
	rv, err := p.repo.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if rv.Status != domain.StatusPending && rv.Status != domain.StatusAIGenerated {
		return fmt.Errorf("%w: review %d is %s", domain.ErrStaleTransition, reviewID, rv.Status)
	}
	return p.repo.TransitionStatus(ctx, reviewID, rv.Status, domain.StatusApproved, domain.TransitionExtra{DraftResponse: draft})
}

// Reject is the side exit out of the approval workflow.
func (p *Publisher) Reject(ctx context.Context, reviewID int64) error {
	rv, err := p.repo.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	err = p.repo.TransitionStatus(ctx, reviewID, rv.Status, domain.StatusRejected, domain.TransitionExtra{})
	if errors.Is(err, domain.ErrIllegalTransition) {
		return fmt.Errorf("%w: cannot reject a %s review", domain.ErrIllegalTransition, rv.Status)
	}
	return err
}
