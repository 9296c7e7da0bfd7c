package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shotpack/internal/http/handlers"
	"shotpack/internal/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(app.Cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJob)
		r.Get("/", app.ListJobs)
		r.Post("/cleanup-stuck", app.CleanupStuck)
		r.Get("/{id}", app.JobStatus)
		r.Post("/{id}/cancel", app.CancelJob)
		r.Post("/{id}/retry", app.RetryJob)
		r.Get("/{id}/download", app.DownloadJob)
	})

	r.Route("/v1/usage", func(r chi.Router) {
		r.Get("/", app.Usage)
		r.Get("/stats", app.UsageStats)
	})

	r.Post("/v1/storage/url", app.SignURL)
	r.Post("/v1/webhook/payment", app.PaymentWebhook)

	if app.Files != nil {
		r.Get("/static/*", app.Static)
	}

	return otelhttp.NewHandler(r, "shotpack.http")
}
