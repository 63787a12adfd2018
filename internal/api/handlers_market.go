// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"net/http"

	"github.com/amerel/killboard/internal/market"
	"github.com/amerel/killboard/internal/models/upstream"
	"github.com/amerel/killboard/internal/validation"
)

// marketScanRequest is the body of POST /api/v1/market/scan. Callers
// either post price entries directly or name items and locations to
// fetch current prices from the game API.
type marketScanRequest struct {
	Prices    []upstream.MarketPrice `json:"prices" validate:"omitempty,dive"`
	Items     []string               `json:"items"`
	Locations []string               `json:"locations"`

	MinROI       float64 `json:"min_roi" validate:"omitempty,gte=0"`
	MaxResults   int     `json:"max_results" validate:"omitempty,gte=0"`
	WeightFactor float64 `json:"weight_factor" validate:"omitempty,gte=0"`
}

// MarketScan handles POST /api/v1/market/scan.
func (h *Handler) MarketScan(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	if h.cfg != nil && !h.cfg.Market.Enabled {
		resp.ServiceUnavailable("market scanning is disabled")
		return
	}

	var req marketScanRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		resp.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		resp.ValidationError("invalid market scan request", verr.Details())
		return
	}

	prices := req.Prices
	if len(prices) == 0 {
		if len(req.Items) == 0 || len(req.Locations) == 0 {
			resp.BadRequest("provide prices, or items and locations to fetch")
			return
		}
		if h.prices == nil {
			resp.ServiceUnavailable("price fetching is not configured")
			return
		}

		fetched, err := h.prices.FetchMarketPrices(r.Context(), req.Items, req.Locations)
		if err != nil {
			resp.UpstreamError(err)
			return
		}
		prices = fetched
	}

	maxResults := req.MaxResults
	if maxResults <= 0 && h.cfg != nil {
		maxResults = h.cfg.Market.MaxResults
	}

	opportunities := market.Scan(prices, market.Params{
		MinROI:       req.MinROI,
		MaxResults:   maxResults,
		WeightFactor: req.WeightFactor,
	})

	resp.SuccessWithMeta(opportunities, &APIMeta{
		Pagination: &PaginationMeta{Count: len(opportunities)},
	})
}
