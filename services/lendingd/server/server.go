package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
	nativecommon "lendmarket/native/common"
	"lendmarket/native/lending"
	"lendmarket/observability"
	"lendmarket/services/lendingd/middleware"
)

const requestLimit = 1 << 20 // 1 MiB

// Protocol is the lending call surface served over HTTP.
type Protocol interface {
	DepositToPool(provider string, asset assets.Symbol, amount decimal.Decimal) (lending.DepositResult, error)
	DepositCollateral(user string, asset assets.Symbol, qty decimal.Decimal) (lending.CollateralResult, error)
	WithdrawCollateral(user string, asset assets.Symbol, qty decimal.Decimal) (lending.CollateralResult, error)
	Borrow(user string, asset assets.Symbol, amount decimal.Decimal) (lending.BorrowResult, error)
	Repay(user string, asset assets.Symbol, amount decimal.Decimal) (lending.RepayResult, error)
	Liquidate(user, liquidator string, repayAsset assets.Symbol, repayAmount decimal.Decimal) (lending.LiquidationResult, error)
	UpdatePrice(asset assets.Symbol, price decimal.Decimal, currency string) (lending.PriceUpdateResult, error)
	LiquidationOpportunities() ([]lending.LiquidationOpportunity, error)
	GetPosition(user string) (lending.PositionSnapshot, error)
	GetPool(asset assets.Symbol) (lending.PoolSnapshot, error)
	ListPools() []lending.PoolSnapshot
}

// Config wires the HTTP server's collaborators.
type Config struct {
	Protocol    Protocol
	Logger      *slog.Logger
	Metrics     *observability.LendingMetrics
	RateLimiter *middleware.RateLimiter
}

// Server translates HTTP requests into protocol calls.
type Server struct {
	proto   Protocol
	logger  *slog.Logger
	metrics *observability.LendingMetrics
	limiter *middleware.RateLimiter
}

// New builds a server. Metrics and the rate limiter are optional.
func New(cfg Config) (*Server, error) {
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("server: protocol required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		proto:   cfg.Protocol,
		logger:  logger.With(slog.String("component", "http")),
		metrics: cfg.Metrics,
		limiter: cfg.RateLimiter,
	}, nil
}

// Router returns the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Observe(s.metrics, s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{OK: true, Message: "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)

		v1.Post("/pools/deposit", s.depositToPool)
		v1.Get("/pools", s.listPools)
		v1.Get("/pools/{asset}", s.getPool)

		v1.Post("/collateral/deposit", s.depositCollateral)
		v1.Post("/collateral/withdraw", s.withdrawCollateral)

		v1.Post("/borrow", s.borrow)
		v1.Post("/repay", s.repay)
		v1.Post("/liquidate", s.liquidate)
		v1.Get("/liquidations", s.liquidations)

		v1.Post("/prices", s.updatePrice)
		v1.Get("/positions/{userId}", s.getPosition)
	})
	return r
}

// envelope is embedded in every response body.
type envelope struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

var errMalformed = errors.New("malformed request")

func decodeRequest(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errMalformed, err)
	}
	if len(body) > requestLimit {
		return fmt.Errorf("%w: body too large", errMalformed)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: body required", errMalformed)
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

type field struct {
	name  string
	value string
}

// required reports the first blank field in declaration order.
func required(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s required", errMalformed, f.name)
		}
	}
	return nil
}

// statusFor maps protocol errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrPositionNotFound), errors.Is(err, lending.ErrPoolNotFound):
		return http.StatusNotFound
	case lending.IsRejection(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFrom(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, status, envelope{OK: false, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("write response", slog.Any("error", err))
	}
}
