package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/cart"
	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/forecast"
	"bakerypos/backend/internal/logger"
	"bakerypos/backend/internal/metrics"
	"bakerypos/backend/internal/sales"
	"bakerypos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger           *logger.Logger
	Metrics          *metrics.Recorder
	ForecastCache    cache.ForecastCache
	ForecastCacheTTL time.Duration
	ForecastModel    func() forecast.Regressor
	CartIdleTTL      time.Duration
	Location         *time.Location
	BillHistoryLimit int
	Now              func() time.Time
}

type Service struct {
	repo       store.Repository
	carts      *cart.Registry
	checkout   *checkout.Engine
	aggregator *sales.Aggregator
	forecasts  *forecast.Reporter
	log        *logger.Logger
	metrics    *metrics.Recorder
	location   *time.Location
	billLimit  int
	now        func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BillHistoryLimit < 1 {
		opts.BillHistoryLimit = 15
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	aggregator := sales.NewAggregator(repo)
	engine := forecast.NewEngine(forecast.WithModel(opts.ForecastModel))
	return &Service{
		repo:       repo,
		carts:      cart.NewRegistry(opts.CartIdleTTL),
		checkout:   checkout.NewEngine(repo, checkout.WithClock(opts.Now), checkout.WithLocation(opts.Location)),
		aggregator: aggregator,
		forecasts:  forecast.NewReporter(aggregator, engine, opts.ForecastCache, opts.ForecastCacheTTL, opts.Metrics),
		log:        opts.Logger,
		metrics:    opts.Metrics,
		location:   opts.Location,
		billLimit:  opts.BillHistoryLimit,
		now:        opts.Now,
	}
}

func (s *Service) ListMenu(ctx context.Context) ([]domain.InventoryItem, error) {
	items, err := s.repo.ListItems(ctx)
	return items, domain.AsPersistence("list items", err)
}

func (s *Service) ListItemNames(ctx context.Context) ([]string, error) {
	names, err := s.repo.DistinctItems(ctx)
	return names, domain.AsPersistence("distinct items", err)
}

func (s *Service) FlavoursFor(ctx context.Context, item string) ([]domain.InventoryItem, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil, domain.NewValidationError("item", "item is required")
	}
	flavours, err := s.repo.FlavoursFor(ctx, item)
	return flavours, domain.AsPersistence("flavours for", err)
}

func (s *Service) OpenCart(ctx context.Context) domain.CartView {
	id := s.carts.Open()
	s.metrics.SetCartSessions(s.carts.Len())
	s.log.Debug(s.log.WithCartID(ctx, id), "cart opened")
	return domain.CartView{ID: id, Lines: []domain.CartLine{}, GrandTotal: decimal.Zero}
}

func (s *Service) GetCart(_ context.Context, id string) (domain.CartView, error) {
	var view domain.CartView
	err := s.carts.With(id, func(c *cart.Cart) error {
		view = cartView(id, c)
		return nil
	})
	return view, err
}

// AddLine prices the line against a fresh catalog snapshot. The stock check at
// this point is advisory; Checkout re-reads stock under lock.
func (s *Service) AddLine(ctx context.Context, id string, req domain.AddLineRequest) (domain.CartView, error) {
	req.Item = strings.TrimSpace(req.Item)
	req.Flavour = strings.TrimSpace(req.Flavour)
	if req.Item == "" || req.Flavour == "" {
		return domain.CartView{}, domain.NewValidationError("item", "item and flavour are required")
	}
	if req.Quantity < 1 {
		return domain.CartView{}, domain.NewValidationError("quantity", "must be a positive integer")
	}

	snapshot, err := s.repo.GetItem(ctx, req.Item, req.Flavour)
	if err != nil {
		return domain.CartView{}, domain.AsPersistence("get item", err)
	}

	var view domain.CartView
	err = s.carts.With(id, func(c *cart.Cart) error {
		if _, err := c.AddLine(req.Item, req.Flavour, req.Quantity, *snapshot); err != nil {
			return err
		}
		view = cartView(id, c)
		return nil
	})
	return view, err
}

func (s *Service) RemoveLine(_ context.Context, id string, index int) (domain.CartView, error) {
	var view domain.CartView
	err := s.carts.With(id, func(c *cart.Cart) error {
		if err := c.RemoveLine(index); err != nil {
			return err
		}
		view = cartView(id, c)
		return nil
	})
	return view, err
}

func (s *Service) ClearCart(_ context.Context, id string) (domain.CartView, error) {
	var view domain.CartView
	err := s.carts.With(id, func(c *cart.Cart) error {
		c.Clear()
		view = cartView(id, c)
		return nil
	})
	return view, err
}

func (s *Service) DiscardCart(_ context.Context, id string) error {
	if err := s.carts.Discard(id); err != nil {
		return err
	}
	s.metrics.SetCartSessions(s.carts.Len())
	return nil
}

// Checkout commits the session's cart. On any failure the cart is left intact so
// the caller can amend it and retry.
func (s *Service) Checkout(ctx context.Context, id string) (domain.Receipt, error) {
	ctx = s.log.WithCartID(ctx, id)
	startedAt := time.Now()

	var receipt domain.Receipt
	err := s.carts.With(id, func(c *cart.Cart) error {
		var err error
		receipt, err = s.checkout.Checkout(ctx, c)
		return err
	})
	s.metrics.ObserveCheckout(checkoutOutcome(err), time.Since(startedAt))

	switch {
	case err == nil:
		s.log.Info(s.log.WithFields(ctx, map[string]any{
			"lines":       len(receipt.Lines),
			"grand_total": receipt.GrandTotal.String(),
		}), "checkout committed")
	case errors.Is(err, domain.ErrPersistence):
		s.log.Error(ctx, "checkout failed", err)
	default:
		s.log.Warn(s.log.WithField(ctx, "reason", err.Error()), "checkout rejected")
	}
	return receipt, err
}

// LatestBill lists the most recent bill lines in serial order with their sum.
func (s *Service) LatestBill(ctx context.Context) (domain.BillView, error) {
	lines, err := s.repo.LatestBillLines(ctx, s.billLimit)
	if err != nil {
		return domain.BillView{}, domain.AsPersistence("latest bill lines", err)
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return domain.BillView{
		Date:       domain.DateOf(s.now(), s.location),
		Lines:      lines,
		GrandTotal: total,
	}, nil
}

func (s *Service) SubmitFeedback(ctx context.Context, req domain.FeedbackRequest) (domain.Feedback, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.Feedback{}, domain.NewValidationError("text", "feedback must not be empty")
	}
	entry, err := s.repo.CreateFeedback(ctx, text, domain.DateOf(s.now(), s.location))
	if err != nil {
		return domain.Feedback{}, domain.AsPersistence("create feedback", err)
	}
	return *entry, nil
}

// VerifyCredentials is the pass/fail employee check. Unknown and inactive
// employees verify false without an error.
func (s *Service) VerifyCredentials(ctx context.Context, employeeID int, password string) (bool, error) {
	if employeeID <= 0 || strings.TrimSpace(password) == "" {
		return false, nil
	}
	account, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, domain.AsPersistence("get employee", err)
	}
	if !account.Active {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil, nil
}

func (s *Service) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	if err := requireEmployee(ctx); err != nil {
		return decimal.Zero, err
	}
	records, err := s.repo.ReadAllSales(ctx)
	if err != nil {
		return decimal.Zero, domain.AsPersistence("read all sales", err)
	}
	return sales.TotalRevenue(records), nil
}

func (s *Service) TopItem(ctx context.Context) (domain.TopSeller, bool, error) {
	if err := requireEmployee(ctx); err != nil {
		return domain.TopSeller{}, false, err
	}
	seller, ok, err := s.repo.TopItemByQuantity(ctx)
	return seller, ok, domain.AsPersistence("top item", err)
}

func (s *Service) TopFlavour(ctx context.Context) (domain.TopSeller, bool, error) {
	if err := requireEmployee(ctx); err != nil {
		return domain.TopSeller{}, false, err
	}
	seller, ok, err := s.repo.TopFlavourByQuantity(ctx)
	return seller, ok, domain.AsPersistence("top flavour", err)
}

func (s *Service) StockReport(ctx context.Context) ([]domain.InventoryItem, error) {
	if err := requireEmployee(ctx); err != nil {
		return nil, err
	}
	return s.ListMenu(ctx)
}

func (s *Service) DailySeries(ctx context.Context) ([]domain.DailySales, error) {
	if err := requireEmployee(ctx); err != nil {
		return nil, err
	}
	return s.aggregator.DailySeries(ctx)
}

func (s *Service) Forecast(ctx context.Context) (domain.ForecastReport, error) {
	if err := requireEmployee(ctx); err != nil {
		return domain.ForecastReport{}, err
	}
	report, cached, err := s.forecasts.Report(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientData) {
			s.log.Error(ctx, "forecast failed", err)
		}
		return domain.ForecastReport{}, err
	}
	if !cached {
		s.log.Debug(s.log.WithField(ctx, "history_days", len(report.History)), "forecast computed")
	}
	return report, nil
}

// SweepCarts drops idle cart sessions.
func (s *Service) SweepCarts(ctx context.Context) int {
	removed := s.carts.Sweep()
	s.metrics.SetCartSessions(s.carts.Len())
	if removed > 0 {
		s.log.Info(s.log.WithField(ctx, "removed", removed), "idle carts swept")
	}
	return removed
}

func requireEmployee(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleEmployee {
		return domain.ErrUnauthorized
	}
	return nil
}

func cartView(id string, c *cart.Cart) domain.CartView {
	return domain.CartView{ID: id, Lines: c.Lines(), GrandTotal: c.GrandTotal()}
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, domain.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailed
	}
}
