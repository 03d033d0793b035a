package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/fee"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/usage"
)

func operationOf(action relay.Action, payingMint solana.PublicKey) fee.Operation {
	return fee.Operation{
		Owner:        action.Owner,
		PayingMint:   payingMint,
		Instructions: action.Instructions,
		NewAccounts:  action.NewAccounts,
		OtherFees:    action.OtherFees,
	}
}

// PrepareRelay returns the unsigned transactions that relay an action
func (h *Handlers) PrepareRelay(c echo.Context) error {
	var req PrepareRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	action, payingMint, err := req.operation()
	if err != nil {
		return h.coreErr(c, err)
	}
	if action.PayingTokenAccount, err = parseOptionalPubkey(req.PayingTokenAccount); err != nil {
		return h.coreErr(c, &fieldError{"paying_token_account", err.Error()})
	}
	if req.PayingBalance != "" {
		n, err := parseAmount(req.PayingBalance)
		if err != nil {
			return h.coreErr(c, &fieldError{"paying_balance", err.Error()})
		}
		action.PayingBalance = &n
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	sw := h.switches(ctx)
	if sw.RelayPaused {
		return h.err(c, http.StatusServiceUnavailable, "relay paused", nil)
	}

	m, fc, err := h.context(ctx, action.Owner, false)
	if err != nil {
		return h.coreErr(c, err)
	}

	// Pools are only needed off the native path; a missing snapshot surfaces
	// as an empty pool set there.
	snap, err := h.Pools.Current()
	if err != nil && !h.Builder.Calculator().IsNative(payingMint) {
		return h.coreErr(c, err)
	}
	var pools []pool.Pool
	if snap != nil {
		pools = sw.Filter(snap.Pools)
	}

	res, fc, err := h.prepare(ctx, m, fc, action, payingMint, pools)
	if err != nil {
		return h.coreErr(c, err)
	}

	resp := PrepareResponse{
		Path:                 res.Path,
		AdditionalPaybackFee: res.AdditionalPaybackFee,
		Fee:                  toFeeResponse(res.Fee),
		Generation:           fc.Generation,
	}
	for _, tx := range res.Transactions {
		enc, err := tx.Encode()
		if err != nil {
			return h.coreErr(c, err)
		}
		resp.Transactions = append(resp.Transactions, enc)
	}
	if res.TopUp != nil {
		resp.TopUp = &TopUpPlanResponse{
			InputAmount:      res.TopUp.InputAmount,
			TargetLamports:   res.TopUp.TargetLamports,
			MinimumAmountOut: res.TopUp.MinimumAmountOut,
			QuotedOutput:     res.TopUp.QuotedOutput,
			Hops:             toHops(res.TopUp.Route),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// maxReserveAttempts bounds how often a subsidized build is retried after
// losing its reservation to a concurrent request
const maxReserveAttempts = 2

// prepare builds the relay of action. A subsidized result is only returned
// once its free relay is reserved; when the allowance ran out since fc was
// fetched, the build is repeated from a fresh context.
func (h *Handlers) prepare(
	ctx context.Context,
	m *feecontext.Manager,
	fc feecontext.FeeContext,
	action relay.Action,
	payingMint solana.PublicKey,
	pools []pool.Pool,
) (*relay.Result, feecontext.FeeContext, error) {
	for attempt := 1; ; attempt++ {
		res, err := h.Builder.PrepareRelayedAction(fc, action, payingMint, pools)
		if err != nil {
			return nil, fc, err
		}
		if res.Path != relay.PathSubsidized || h.Usage == nil {
			return res, fc, nil
		}

		err = h.reserveSubsidy(ctx, m, fc, action, payingMint)
		if err == nil {
			return res, fc, nil
		}
		if !errors.Is(err, usage.ErrAllowanceExhausted) || attempt >= maxReserveAttempts {
			return nil, fc, err
		}

		h.Logger.WithField("owner", action.Owner.String()).Debug("free-tier reservation lost, rebuilding")
		m.Invalidate()
		if fc, err = m.Update(ctx); err != nil {
			return nil, fc, err
		}
	}
}

// reserveSubsidy takes the relay-paid fee of action from the owner's free
// tier and drops the owner's cached context so the next one sees the new usage
func (h *Handlers) reserveSubsidy(ctx context.Context, m *feecontext.Manager, fc feecontext.FeeContext, action relay.Action, payingMint solana.PublicKey) error {
	lamports := h.Builder.Calculator().SubsidizedFee(operationOf(action, payingMint), fc)

	rctx, cancel := h.withTimeout(ctx, 3*time.Second)
	defer cancel()

	status, err := h.Usage.Reserve(rctx, action.Owner, lamports)
	if errors.Is(err, usage.ErrAllowanceExhausted) {
		return err
	}
	if err != nil {
		h.Logger.WithError(err).WithField("owner", action.Owner.String()).Error("failed to reserve free-tier usage")
		return fmt.Errorf("%w: %v", errUsageUnavailable, err)
	}
	m.Invalidate()

	h.Logger.WithFields(logrus.Fields{
		"owner":     action.Owner.String(),
		"lamports":  lamports,
		"remaining": status.RemainingFree(),
	}).Debug("free-tier usage reserved")
	return nil
}
