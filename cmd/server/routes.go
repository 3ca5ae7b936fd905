package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/handlers"
	"github.com/Lixing-Zhang/restaurant-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type routes struct {
	health  *handlers.HealthHandler
	menu    *handlers.MenuHandler
	dishes  *handlers.DishHandler
	orders  *handlers.OrderHandler
	metrics http.Handler
}

func newRouter(h routes, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.ServeHTTP)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		// Menu endpoints
		r.Get("/menu", h.menu.GetMenu)
		r.Get("/menu/search", h.menu.Search)
		r.Post("/menu/import", h.menu.ImportMenu)

		r.Get("/category/{category}/dishes", h.menu.ListByCategory)
		r.Delete("/category/{categoryId}", h.menu.DeleteCategory)

		// Dish endpoints
		r.Get("/dish/{dishId}", h.dishes.GetDish)
		r.Put("/dish/{dishId}/price", h.dishes.UpdatePrice)
		r.Post("/dish/{dishId}/restock", h.dishes.Restock)
		r.Delete("/dish/{dishId}", h.dishes.DeleteDish)

		// Order endpoints
		r.Post("/order", h.orders.CreateOrder)
		r.Get("/order", h.orders.ListOrders)
		r.Get("/order/{orderId}", h.orders.GetOrder)
		r.Put("/order/{orderId}/paid", h.orders.MarkPaid)
		r.Delete("/order/{orderId}", h.orders.DeleteOrder)
	})

	return r
}
