package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
	"lendmarket/native/lending"
)

type poolDepositRequest struct {
	LPID   string          `json:"lpId"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type collateralRequest struct {
	UserID   string          `json:"userId"`
	Asset    string          `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
}

type loanRequest struct {
	UserID string          `json:"userId"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type liquidateRequest struct {
	UserID       string          `json:"userId"`
	LiquidatorID string          `json:"liquidatorId"`
	RepayAsset   string          `json:"repayAsset"`
	RepayAmount  decimal.Decimal `json:"repayAmount"`
}

type priceRequest struct {
	Asset    string          `json:"asset"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

func (s *Server) depositToPool(w http.ResponseWriter, r *http.Request) {
	var req poolDepositRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field{"lpId", req.LPID}, field{"asset", req.Asset}); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.Asset)
	res, err := s.proto.DepositToPool(req.LPID, asset, req.Amount)
	s.metrics.RecordOperation("pool_deposit", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.DepositResult
	}{envelope{OK: true, Message: fmt.Sprintf("Deposited %s %s", req.Amount, asset)}, res})
}

func (s *Server) depositCollateral(w http.ResponseWriter, r *http.Request) {
	s.moveCollateral(w, r, false)
}

func (s *Server) withdrawCollateral(w http.ResponseWriter, r *http.Request) {
	s.moveCollateral(w, r, true)
}

func (s *Server) moveCollateral(w http.ResponseWriter, r *http.Request, withdraw bool) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field{"userId", req.UserID}, field{"asset", req.Asset}); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.Asset)

	var (
		res     lending.CollateralResult
		err     error
		action  = "collateral_deposit"
		message = fmt.Sprintf("Deposited %s %s as collateral", req.Quantity, asset)
	)
	if withdraw {
		action = "collateral_withdraw"
		message = fmt.Sprintf("Withdrew %s %s of collateral", req.Quantity, asset)
		res, err = s.proto.WithdrawCollateral(req.UserID, asset, req.Quantity)
	} else {
		res, err = s.proto.DepositCollateral(req.UserID, asset, req.Quantity)
	}
	s.metrics.RecordOperation(action, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.CollateralResult
	}{envelope{OK: true, Message: message}, res})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field{"userId", req.UserID}, field{"asset", req.Asset}); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.Asset)
	res, err := s.proto.Borrow(req.UserID, asset, req.Amount)
	s.metrics.RecordOperation("borrow", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.BorrowResult
	}{envelope{OK: true, Message: fmt.Sprintf("Borrowed %s %s", req.Amount, asset)}, res})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field{"userId", req.UserID}, field{"asset", req.Asset}); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.Asset)
	res, err := s.proto.Repay(req.UserID, asset, req.Amount)
	s.metrics.RecordOperation("repay", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.RepayResult
	}{envelope{OK: true, Message: fmt.Sprintf("Repaid %s %s", req.Amount, asset)}, res})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := required(
		field{"userId", req.UserID},
		field{"liquidatorId", req.LiquidatorID},
		field{"repayAsset", req.RepayAsset},
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.RepayAsset)
	res, err := s.proto.Liquidate(req.UserID, req.LiquidatorID, asset, req.RepayAmount)
	s.metrics.RecordOperation("liquidate", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.LiquidationResult
	}{envelope{OK: true, Message: fmt.Sprintf("Liquidated %s %s", req.RepayAmount, asset)}, res})
}

func (s *Server) liquidations(w http.ResponseWriter, r *http.Request) {
	opportunities, err := s.proto.LiquidationOpportunities()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		Opportunities []lending.LiquidationOpportunity `json:"liquidationOpportunities"`
	}{envelope{OK: true, Message: fmt.Sprintf("%d positions liquidatable", len(opportunities))}, opportunities})
}

func (s *Server) updatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field{"asset", req.Asset}, field{"currency", req.Currency}); err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := assets.NewSymbol(req.Asset)
	res, err := s.proto.UpdatePrice(asset, req.Price, req.Currency)
	s.metrics.RecordOperation("price_update", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.SetOpportunities(len(res.Opportunities))
	writeJSON(w, http.StatusOK, struct {
		envelope
		lending.PriceUpdateResult
	}{envelope{OK: true, Message: fmt.Sprintf("Updated %s to %s %s", asset, req.Price, req.Currency)}, res})
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	snap, err := s.proto.GetPosition(chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		Position lending.PositionSnapshot `json:"position"`
	}{envelope{OK: true}, snap})
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	snap, err := s.proto.GetPool(assets.NewSymbol(chi.URLParam(r, "asset")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		envelope
		Pool lending.PoolSnapshot `json:"pool"`
	}{envelope{OK: true}, snap})
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		envelope
		Pools []lending.PoolSnapshot `json:"pools"`
	}{envelope{OK: true}, s.proto.ListPools()})
}
