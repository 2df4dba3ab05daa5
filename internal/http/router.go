package http

import (
	"net/http"

	"leasebook/internal/attention"
	"leasebook/internal/auth"
	"leasebook/internal/blob"
	"leasebook/internal/config"
	"leasebook/internal/http/handler"
	mw "leasebook/internal/http/middleware"
	"leasebook/internal/jobs"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/review"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Deps struct {
	Config    config.Config
	DB        *gorm.DB
	JWT       *auth.JWT
	Log       *logger.Logger
	Leases    *lease.Service
	Payments  *payment.Log
	Threads   *thread.Engine
	Tokens    *tenantaccess.Service
	Attention *attention.Service
	Review    *review.Service
	Blobs     *blob.Store
	// Jobs is optional; without it lease edits do not reschedule sweeps.
	Jobs *jobs.Repo
	// Metrics is optional; without it /metrics is not mounted.
	Metrics prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID(d.Log))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.Logging(d.Log))

	if len(d.Config.CORS.AllowedOrigins) > 0 {
		r.Use(mw.CORS(d.Config.CORS.AllowedOrigins, d.Config.CORS.AllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	maxUpload := d.Config.Storage.MaxUploadBytes
	requireAuth := auth.RequireAuth(d.JWT, d.Log)

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Log: d.Log}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{DB: d.DB, Log: d.Log}
	r.With(requireAuth).Get("/me", me.Me)

	leases := &handler.LeaseHandler{Leases: d.Leases, Jobs: d.Jobs, Log: d.Log}
	groups := &handler.GroupHandler{Attention: d.Attention, Threads: d.Threads, Payments: d.Payments, Log: d.Log}
	payments := &handler.PaymentHandler{Payments: d.Payments, Review: d.Review, MaxUploadBytes: maxUpload, Log: d.Log}
	tokens := &handler.TokenHandler{Tokens: d.Tokens, Log: d.Log}
	files := &handler.FileHandler{Blobs: d.Blobs, Log: d.Log}

	r.Route("/leases", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", leases.List)
		r.Post("/", leases.Create)
		r.Get("/{id}", leases.Get)
		r.Put("/{id}", leases.Update)
		r.Put("/{id}/expected-payments", leases.SetExpectedPayments)
		r.Post("/{id}/renew", leases.Renew)
		r.Post("/{id}/terminate", leases.Terminate)
		r.Get("/{id}/termination", leases.Termination)
	})

	r.Route("/groups", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", groups.Dashboard)
		r.Route("/{group}", func(r chi.Router) {
			r.Get("/", groups.View)
			r.Get("/versions", leases.Versions)
			r.Get("/attention", groups.AttentionSummary)
			r.Get("/months/{period}", groups.Month)

			r.Get("/payments", payments.List)
			r.Post("/payments", payments.CreateManual)
			r.Post("/payments/{paymentID}/review", payments.ReviewPayment)

			r.Get("/threads", groups.ListThreads)
			r.Get("/threads/{threadID}/timeline", groups.Timeline)
			r.Post("/threads/{threadID}/messages", payments.Remind)

			r.Get("/tokens", tokens.List)
			r.Post("/tokens", tokens.Generate)
			r.Post("/tokens/revoke", tokens.Revoke)

			r.Get("/files/{name}", files.Landlord)
		})
	})

	tenant := &handler.TenantHandler{
		Leases:         d.Leases,
		Payments:       d.Payments,
		Threads:        d.Threads,
		Review:         d.Review,
		VisibleMonths:  d.Config.Review.VisibleMonths,
		MaxUploadBytes: maxUpload,
		Log:            d.Log,
	}
	r.Route("/tenant/{token}", func(r chi.Router) {
		r.Use(mw.TenantToken(d.Tokens, d.Log))

		r.Get("/", tenant.Page)
		r.Post("/confirm", tenant.Confirm)
		r.Post("/payments/{paymentID}/reply", tenant.Reply)
		r.Get("/files/{name}", files.Tenant)
	})

	return r
}
