package api

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/veloshop/billing-backend/errors"
	"github.com/veloshop/billing-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

// MaxWebhookBodyBytes caps webhook payload reads; gateway events stay well
// under this.
const MaxWebhookBodyBytes = int64(65536)

// stripeWebhookHandler receives gateway events. Signature failures are
// rejected with 400 so a misconfigured endpoint is visible on the gateway
// side; processing failures return 500 so the delivery is retried; every
// accepted event is answered with {"received":true}.
func (a *API) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("stripe webhook: error reading request body: %s", err.Error())
		errors.ErrMalformedBody.Write(w)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		log.Warnf("stripe webhook: missing Stripe-Signature header")
		errors.ErrInvalidSignature.With("missing Stripe-Signature header").Write(w)
		return
	}

	if err := a.stripe.HandleWebhookEvent(payload, signatureHeader); err != nil {
		log.Errorf("stripe webhook: failed to process event: %v", err)
		webhookErrorResponse(err).Write(w)
		return
	}

	httpWriteJSON(w, &WebhookAck{Received: true})
}

// webhookErrorResponse classifies a webhook processing failure. Signature and
// payload failures map to 400 so the gateway reports them instead of
// retrying; everything else is treated as transient and maps to 500 so the
// delivery is retried. errors.As keeps the classification working when the
// handlers wrap the gateway error with context.
func webhookErrorResponse(err error) errors.Error {
	var stripeErr *stripe.StripeError
	if stderrors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case "webhook_validation":
			return errors.ErrInvalidSignature
		case "invalid_event":
			return errors.ErrMalformedBody.With("malformed event payload")
		}
	}
	return errors.ErrWebhookProcessing
}
