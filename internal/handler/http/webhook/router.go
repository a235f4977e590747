package webhook_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/app/reconciler"
)

func RegisterRoutes(r chi.Router, s reconciler.Service, l *zap.Logger) {
	handler := NewWebhookHandler(s, l.With(zap.String("component", "WebhookHTTPHandler")))

	r.Post("/ipn", handler.HandleIPN)
}
