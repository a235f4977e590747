package webhook_http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/app/reconciler"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/domain"
	"github.com/williamfortunademoraes/woocommerce-asaas/internal/gateway/asaas"
)

type WebhookHandler struct {
	service reconciler.Service
	logger  *zap.Logger
}

func NewWebhookHandler(s reconciler.Service, l *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: s, logger: l}
}

// ipnPayload is the provider's JSON wire shape. Numeric fields arrive as
// numbers or numeric strings depending on the provider version, hence
// json.Number throughout.
type ipnPayload struct {
	Reference string      `json:"reference"`
	Status    json.Number `json:"status"`
	Code      string      `json:"code"`
	Sender    struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"sender"`
	PaymentMethod struct {
		Type json.Number `json:"type"`
		Code json.Number `json:"code"`
	} `json:"paymentMethod"`
	InstallmentCount json.Number `json:"installmentCount"`
	PaymentLink      string      `json:"paymentLink"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleIPN is the inbound notification endpoint. 200 covers applied
// transitions and idempotent no-ops alike; anything the provider should
// not retry gets a 4xx.
func (h *WebhookHandler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("Failed to read IPN request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
		return
	}

	raw, err := h.decodePayload(r, body)
	if err != nil {
		h.logger.Warn("Failed to decode IPN payload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed payload"})
		return
	}

	result, err := h.service.HandleNotification(r.Context(), raw, body)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) decodePayload(r *http.Request, body []byte) (domain.RawNotification, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var payload ipnPayload
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err != nil {
			return domain.RawNotification{}, err
		}
		return domain.RawNotification{
			Reference:         payload.Reference,
			Status:            payload.Status.String(),
			TransactionID:     payload.Code,
			SenderEmail:       payload.Sender.Email,
			SenderName:        payload.Sender.Name,
			PaymentType:       payload.PaymentMethod.Type.String(),
			PaymentMethodCode: payload.PaymentMethod.Code.String(),
			InstallmentCount:  payload.InstallmentCount.String(),
			PaymentLink:       payload.PaymentLink,
		}, nil
	}

	// Default wire shape is form-encoded, with the provider's bracketed
	// keys for nested fields.
	values, err := parseForm(body)
	if err != nil {
		return domain.RawNotification{}, err
	}
	return domain.RawNotification{
		Reference:         values.Get("reference"),
		Status:            values.Get("status"),
		TransactionID:     values.Get("code"),
		SenderEmail:       values.Get("sender[email]"),
		SenderName:        values.Get("sender[name]"),
		PaymentType:       values.Get("paymentMethod[type]"),
		PaymentMethodCode: values.Get("paymentMethod[code]"),
		InstallmentCount:  values.Get("installmentCount"),
		PaymentLink:       values.Get("paymentLink"),
	}, nil
}

func (h *WebhookHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingReference),
		errors.Is(err, domain.ErrUnresolvableReference),
		errors.Is(err, domain.ErrMissingStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, asaas.ErrProviderUnavailable):
		// Safe to retry: nothing was mutated.
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "provider unavailable, retry later"})
	case errors.Is(err, asaas.ErrProviderRejected), errors.Is(err, asaas.ErrNotFound):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "provider rejected status confirmation"})
	case errors.Is(err, reconciler.ErrReconciliationConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "reconciliation conflict, manual review required"})
	default:
		h.logger.Error("Unexpected error handling IPN", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func parseForm(body []byte) (url.Values, error) {
	return url.ParseQuery(string(body))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
