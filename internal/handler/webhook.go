package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance is how far a signed timestamp may drift from
// the local clock.
const DefaultSignatureTolerance = 5 * time.Minute

// checkoutCompleted is the payment event that funds a job.
const checkoutCompleted = "checkout.session.completed"

// JobFunder marks a job as paid for.
type JobFunder interface {
	MarkJobFunded(ctx context.Context, jobID string) error
}

// WebhookHandler receives payment provider callbacks. Requests are
// authenticated by an HMAC signature over the raw body, not by API key.
type WebhookHandler struct {
	secret    string
	funder    JobFunder
	logger    *slog.Logger
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookHandler creates a WebhookHandler. An empty secret rejects every
// delivery.
func NewWebhookHandler(secret string, funder JobFunder, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		funder:    funder,
		logger:    logger,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

type paymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Payments handles a payment event.
// POST /api/v1/webhooks/payments
func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" || h.secret == "" {
		writeError(w, http.StatusBadRequest, "missing payment signature or webhook secret")
		return
	}

	defer r.Body.Close()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, DefaultMaxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if err := verifySignature(payload, sig, h.secret, h.now(), h.tolerance); err != nil {
		h.logger.Warn("payment webhook rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ev paymentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	if ev.Type == checkoutCompleted {
		if jobID := ev.Data.Object.Metadata["taskId"]; jobID != "" {
			h.logger.Info("payment received for job", "job_id", jobID, "event_id", ev.ID)
			if err := h.funder.MarkJobFunded(r.Context(), jobID); err != nil {
				respondError(w, r, h.logger, "job", err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// verifySignature checks a "t=<unix>,v1=<hex>" header. Any v1 entry may
// match; the MAC covers "<t>.<payload>".
func verifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	var (
		ts         int64
		haveTS     bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.New("invalid signature timestamp")
			}
			ts, haveTS = n, true
		case "v1":
			if b, err := hex.DecodeString(v); err == nil {
				signatures = append(signatures, b)
			}
		}
	}
	if !haveTS || len(signatures) == 0 {
		return errors.New("malformed signature header")
	}

	signedAt := time.Unix(ts, 0)
	if d := now.Sub(signedAt); d > tolerance || d < -tolerance {
		return fmt.Errorf("signature timestamp outside tolerance of %s", tolerance)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, s := range signatures {
		if hmac.Equal(expected, s) {
			return nil
		}
	}
	return errors.New("signature mismatch")
}

// SignPayload builds the signature header a sender would attach to payload
// at the given time.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
