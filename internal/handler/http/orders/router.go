package orders_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/williamfortunademoraes/woocommerce-asaas/internal/app/reconciler"
)

func RegisterRoutes(r chi.Router, s reconciler.Service, l *zap.Logger) {
	handler := NewOrderHandler(s, l.With(zap.String("component", "OrderHTTPHandler")))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Reconciler service is healthy!"))
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrderHandler)
		r.Get("/", handler.ListOrdersHandler)
		r.Get("/{id}", handler.GetOrderHandler)
		r.Get("/{id}/notifications", handler.ListOrderNotificationsHandler)
	})
}
