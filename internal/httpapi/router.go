package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &handler{
		orders:     d.Orders,
		affiliates: d.Affiliates,
		catalog:    d.Catalog,
		peptides:   d.Peptides,
		users:      d.Users,
		health:     d.Health,
		logger:     logger,
	}
	auth := &authMiddleware{auth: d.Auth, logger: logger}
	idem := idempotent(d.Idempotency, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))

	r.Get("/healthz", h.healthz)

	r.Route("/orders", func(r chi.Router) {
		r.With(auth.Optional, idem).Post("/", h.createOrder)
		r.With(auth.Admin).Get("/", h.listOrders)
		r.With(auth.Required).Get("/my-orders", h.listMyOrders)
		r.With(auth.Required).Get("/{id}", h.getOrder)
		r.With(auth.Admin, idem).Put("/{id}/status", h.updateOrderStatus)
	})

	r.Route("/products", func(r chi.Router) {
		r.With(auth.Optional).Get("/", h.listProducts)
		r.With(auth.Optional).Get("/{id}", h.getProduct)
		r.With(auth.Admin, idem).Post("/", h.createProduct)
		r.With(auth.Admin).Put("/{id}", h.updateProduct)
		r.With(auth.Admin).Delete("/{id}", h.deleteProduct)
		r.With(auth.Admin).Put("/{id}/stock", h.updateStock)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Get("/{id}", h.getCategory)
		r.With(auth.Admin).Post("/", h.createCategory)
		r.With(auth.Admin).Put("/{id}", h.updateCategory)
		r.With(auth.Admin).Delete("/{id}", h.deleteCategory)
	})

	r.Route("/peptides", func(r chi.Router) {
		r.With(auth.Optional).Get("/", h.listPeptides)
		r.With(auth.Optional).Get("/{id}", h.getPeptide)
		r.With(auth.Admin, idem).Post("/", h.createPeptide)
		r.With(auth.Admin).Put("/{id}", h.updatePeptide)
		r.With(auth.Admin).Delete("/{id}", h.deletePeptide)
	})

	r.Route("/affiliates", func(r chi.Router) {
		r.Get("/validate/{code}", h.validateAffiliateCode)
		r.With(auth.Required, idem).Post("/apply", h.applyAffiliate)
		r.With(auth.Required).Get("/me", h.myAffiliate)
		r.With(auth.Admin).Get("/", h.listAffiliates)
		r.With(auth.Admin).Get("/{id}", h.getAffiliate)
		r.With(auth.Admin).Put("/{id}/status", h.setAffiliateStatus)
		r.With(auth.Admin).Put("/{id}/commission", h.setAffiliateCommission)
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(auth.Admin)
		r.Get("/", h.listUsers)
		r.Put("/{id}/role", h.updateUserRole)
		r.Delete("/{id}", h.deleteUser)
	})

	return r
}
