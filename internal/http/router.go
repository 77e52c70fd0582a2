package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the cart API once per region prefix and once without a
// prefix (default region). Handlers resolve the region from the full path.
func NewRouter(h *CartHandler, timeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	cartRoutes := func(r chi.Router) {
		r.Use(SessionMiddleware)
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Get("/notices", h.GetNotices)
		r.Post("/items", h.AddItem)
		r.Put("/items/{id}", h.UpdateQuantity)
		r.Delete("/items/{id}", h.RemoveItem)
	}

	r.Route("/api/v1/cart", cartRoutes)
	r.Route("/om/api/v1/cart", cartRoutes)
	r.Route("/sa/api/v1/cart", cartRoutes)

	return otelhttp.NewHandler(r, "storefront-cart")
}
