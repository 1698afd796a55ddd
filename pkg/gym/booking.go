package gym

import (
	"context"

	"github.com/shaneisley/gymbook/pkg/conditions"
	"github.com/shaneisley/gymbook/pkg/logging"
)

// Booker performs a single booking call and classifies the reply
type Booker struct {
	requester Requester
	endpoint  string
	logger    *logging.Logger
}

// NewBooker creates a Booker
func NewBooker(requester Requester, endpoint string, logger *logging.Logger) *Booker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Booker{
		requester: requester,
		endpoint:  endpoint,
		logger:    logger.WithComponent("booking"),
	}
}

// Book sends req once through the requester. A non-nil error means the
// requester gave up; the outcome is then Failed.
func (b *Booker) Book(ctx context.Context, req BookingRequest) (conditions.Outcome, error) {
	resp, err := b.requester.Execute(ctx, b.endpoint, req.Form())
	if err != nil {
		return conditions.Outcome{State: conditions.Failed, Reason: err.Error()}, err
	}

	b.logger.Debug("API response payload", "payload", resp.Fields)
	return conditions.Classify(resp), nil
}
