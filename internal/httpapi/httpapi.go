package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/logger"
	"bakerypos/backend/internal/metrics"
	"bakerypos/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	log           *logger.Logger
	metrics       *metrics.Recorder
	gatherer      prometheus.Gatherer
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

type Options struct {
	AllowedOrigin string
	Logger        *logger.Logger
	Metrics       *metrics.Recorder
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		gatherer:      opts.Gatherer,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.requestID,
		a.recoverer,
		a.securityHeaders,
		a.accessLog,
		middleware.CleanPath,
	)

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Get("/menu", a.handleMenu)
		r.Get("/menu/items", a.handleItemNames)
		r.Get("/menu/items/{item}/flavours", a.handleFlavours)

		r.Post("/carts", a.handleOpenCart)
		r.Route("/carts/{cartID}", func(r chi.Router) {
			r.Get("/", a.handleGetCart)
			r.Delete("/", a.handleDiscardCart)
			r.Post("/lines", a.handleAddLine)
			r.Delete("/lines", a.handleClearCart)
			r.Delete("/lines/{index}", a.handleRemoveLine)
			r.Post("/checkout", a.handleCheckout)
		})

		r.Get("/bills/latest", a.handleLatestBill)
		r.Post("/feedback", a.handleFeedback)

		r.Route("/reports", func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleEmployee))
			r.Get("/total-sales", a.handleTotalSales)
			r.Get("/top-item", a.handleTopItem)
			r.Get("/top-flavour", a.handleTopFlavour)
			r.Get("/stock", a.handleStock)
			r.Get("/daily-sales", a.handleDailySales)
			r.Get("/forecast", a.handleForecast)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Error: "too many login attempts"})
		return
	}

	var req domain.LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			a.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		a.writeError(w, r, err)
		return
	}

	a.log.Info(a.log.WithEmployeeID(r.Context(), req.EmployeeID), "employee logged in")
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListMenu(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleItemNames(w http.ResponseWriter, r *http.Request) {
	names, err := a.service.ListItemNames(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": names})
}

func (a *API) handleFlavours(w http.ResponseWriter, r *http.Request) {
	flavours, err := a.service.FlavoursFor(r.Context(), chi.URLParam(r, "item"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flavours": flavours})
}

func (a *API) handleOpenCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, a.service.OpenCart(r.Context()))
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDiscardCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardCart(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req domain.AddLineRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.service.AddLine(r.Context(), chi.URLParam(r, "cartID"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ClearCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		a.writeError(w, r, domain.NewValidationError("index", "must be an integer"))
		return
	}
	view, err := a.service.RemoveLine(r.Context(), chi.URLParam(r, "cartID"), index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.Checkout(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleLatestBill(w http.ResponseWriter, r *http.Request) {
	bill, err := a.service.LatestBill(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedbackRequest
	if err := decodeAndValidate(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.service.SubmitFeedback(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleTotalSales(w http.ResponseWriter, r *http.Request) {
	total, err := a.service.TotalSales(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_revenue": total})
}

func (a *API) handleTopItem(w http.ResponseWriter, r *http.Request) {
	seller, ok, err := a.service.TopItem(r.Context())
	a.writeTopSeller(w, r, seller, ok, err)
}

func (a *API) handleTopFlavour(w http.ResponseWriter, r *http.Request) {
	seller, ok, err := a.service.TopFlavour(r.Context())
	a.writeTopSeller(w, r, seller, ok, err)
}

// writeTopSeller reports an empty ledger as found=false rather than an error.
func (a *API) writeTopSeller(w http.ResponseWriter, r *http.Request, seller domain.TopSeller, ok bool, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"found":          true,
		"name":           seller.Name,
		"total_quantity": seller.TotalQuantity,
	})
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.StockReport(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleDailySales(w http.ResponseWriter, r *http.Request) {
	series, err := a.service.DailySeries(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": series})
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.Forecast(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
