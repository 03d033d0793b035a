package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/fee"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/storage"
)

// ContextSource hands out per-owner fee context managers
type ContextSource interface {
	For(owner solana.PublicKey) (*feecontext.Manager, error)
}

// PoolSource returns the current pool snapshot
type PoolSource interface {
	Current() (*poolset.Snapshot, error)
}

// UsageReserver takes subsidized relays from the free tier. Reserve returns
// usage.ErrAllowanceExhausted when the relay no longer fits.
type UsageReserver interface {
	Reserve(ctx context.Context, owner solana.PublicKey, lamports uint64) (feecontext.UsageStatus, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Contexts ContextSource         // Per-owner fee contexts
	Pools    PoolSource            // Current pool snapshot
	Router   router.Router         // Route search and pricing
	Builder  *relay.Builder        // Relayed action assembly
	Usage    UsageReserver         // Free-tier accounting (optional)
	History  storage.SnapshotStore // Pool reserve history (optional)
	Flags    FlagStore             // Operator switches (optional)
	DevMode  bool                  // Enable detailed error responses in development
	Logger   *logrus.Logger        // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// coreErr maps an error of the relay core to its HTTP response
func (h *Handlers) coreErr(c echo.Context, err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: http.StatusBadRequest, Details: fe.details()})
	}

	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// context returns the owner's manager and current fee context
func (h *Handlers) context(ctx context.Context, owner solana.PublicKey, refresh bool) (*feecontext.Manager, feecontext.FeeContext, error) {
	m, err := h.Contexts.For(owner)
	if err != nil {
		return nil, feecontext.FeeContext{}, &fieldError{"owner", err.Error()}
	}

	var fc feecontext.FeeContext
	if refresh {
		fc, err = m.Update(ctx)
	} else {
		fc, err = m.GetCurrentContext(ctx)
	}
	if err != nil {
		return nil, feecontext.FeeContext{}, err
	}
	return m, fc, nil
}

// Health reports liveness and the loaded pool snapshot
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true}
	if snap, err := h.Pools.Current(); err == nil {
		resp.PoolVersion = snap.Version
		resp.Pools = len(snap.Pools)
		resp.RoutablePool = snap.Routable()
	}
	return c.JSON(http.StatusOK, resp)
}

// Context returns the owner's fee context, fetching it on first use
func (h *Handlers) Context(c echo.Context) error {
	return h.renderContext(c, false)
}

// RefreshContext forces a new fee context fetch for the owner
func (h *Handlers) RefreshContext(c echo.Context) error {
	return h.renderContext(c, true)
}

func (h *Handlers) renderContext(c echo.Context, refresh bool) error {
	owner, err := parsePubkey(c.Param("owner"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	_, fc, err := h.context(ctx, owner, refresh)
	if err != nil {
		return h.coreErr(c, err)
	}
	return c.JSON(http.StatusOK, toContextResponse(fc))
}

// PoolsList lists the pools of the current snapshot
func (h *Handlers) PoolsList(c echo.Context) error {
	snap, err := h.Pools.Current()
	if err != nil {
		return h.coreErr(c, err)
	}

	items := make([]PoolResponse, 0, len(snap.Pools))
	for _, p := range snap.Pools {
		items = append(items, toPoolResponse(p))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"version": snap.Version,
		"source":  snap.Source,
		"items":   items,
	})
}

// PoolHistory returns stored reserve rows of one pool
// Accepts limit query parameter (default: 100, range: 1-1000)
func (h *Handlers) PoolHistory(c echo.Context) error {
	if h.History == nil {
		return h.err(c, http.StatusNotImplemented, "pool history is not configured", nil)
	}

	id, err := parsePubkey(c.Param("id"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid pool id", map[string]any{"id": err.Error()})
	}

	limit := 100
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 1000 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 1000"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.History.PoolHistory(ctx, id.String(), limit)
	if err != nil {
		h.Logger.WithError(err).Error("pool history query failed")
		return h.err(c, http.StatusInternalServerError, "failed to get pool history", nil)
	}
	return c.JSON(http.StatusOK, PoolHistoryResponse{Items: items})
}

// CalculateFee prices an operation against the owner's fee context
func (h *Handlers) CalculateFee(c echo.Context) error {
	var req OperationRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	action, payingMint, err := req.operation()
	if err != nil {
		return h.coreErr(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	_, fc, err := h.context(ctx, action.Owner, false)
	if err != nil {
		return h.coreErr(c, err)
	}

	amount, err := h.Builder.Calculator().CalculateFee(operationOf(action, payingMint), fc)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid operation", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, FeeCalculateResponse{Fee: toFeeResponse(amount), Generation: fc.Generation})
}

// TopUp returns how much native must be swapped into the relay account
// before the operation can be paid for
func (h *Handlers) TopUp(c echo.Context) error {
	var req OperationRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	action, payingMint, err := req.operation()
	if err != nil {
		return h.coreErr(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	_, fc, err := h.context(ctx, action.Owner, false)
	if err != nil {
		return h.coreErr(c, err)
	}

	calc := h.Builder.Calculator()
	amount, err := calc.CalculateFee(operationOf(action, payingMint), fc)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid operation", map[string]any{"err": err.Error()})
	}
	target := calc.CalculateNeededTopUp(fc, amount, payingMint)

	resp := TopUpResponse{
		Fee:           toFeeResponse(amount),
		TopUpLamports: target,
		TopUpUI:       uiAmount(target, NativeDecimals),
		Generation:    fc.Generation,
	}
	if !calc.IsNative(payingMint) {
		resp.PaybackLamport = fee.PaybackFee(fc, amount)
	}
	return c.JSON(http.StatusOK, resp)
}
