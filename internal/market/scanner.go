// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package market finds cross-city arbitrage opportunities in market
// price data. Scanning is pure computation over the entries handed in;
// nothing is fetched or persisted here.
//
// For every item, each ordered pair of cities with positive prices is
// evaluated: buy off the source city's cheapest sell order, haul it,
// and list it at the destination's cheapest sell price. Destination
// taxes and a per-zone transport cost come off the top; what clears the
// requested ROI floor is returned, best first.
package market

import (
	"sort"

	"github.com/amerel/killboard/internal/models/upstream"
)

// Market economics. Rates apply to the destination listing; transport
// is charged per zone traveled.
const (
	// MarketTaxRate is the sales tax taken when the destination listing
	// sells.
	MarketTaxRate = 0.045

	// SetupFeeRate is the non-refundable fee for placing the listing.
	SetupFeeRate = 0.015

	// SilverPerZone is the hauling cost per zone for a weight factor of 1.
	SilverPerZone = 100.0
)

// Route distances, in zones. Caerleon sits in the center of the map, so
// any route through it is shorter than a royal-to-royal run.
const (
	HubCity           = "Caerleon"
	HubDistance       = 8
	CrossCityDistance = 12
)

// Result bounds.
const (
	DefaultMaxResults = 50
	MaxResultsCap     = 200
)

// Opportunity is one profitable cross-city flip, per unit hauled.
type Opportunity struct {
	ItemID        string  `json:"item_id"`
	BuyCity       string  `json:"buy_city"`
	SellCity      string  `json:"sell_city"`
	BuyQuality    int     `json:"buy_quality"`
	SellQuality   int     `json:"sell_quality"`
	BuyPrice      int64   `json:"buy_price"`
	SellPrice     int64   `json:"sell_price"`
	Profit        float64 `json:"profit"`
	ROI           float64 `json:"roi"`
	Taxes         float64 `json:"taxes"`
	TransportCost float64 `json:"transport_cost"`
}

// Params bound a scan. Zero values fall back to sensible defaults:
// MinROI 0 keeps anything that at least breaks even, MaxResults 0 means
// DefaultMaxResults, WeightFactor <= 0 means a single unit's weight.
type Params struct {
	MinROI       float64 `json:"min_roi"`
	MaxResults   int     `json:"max_results"`
	WeightFactor float64 `json:"weight_factor"`
}

func (p Params) normalized() Params {
	if p.MaxResults <= 0 {
		p.MaxResults = DefaultMaxResults
	}
	if p.MaxResults > MaxResultsCap {
		p.MaxResults = MaxResultsCap
	}
	if p.WeightFactor <= 0 {
		p.WeightFactor = 1
	}
	return p
}

// Scan evaluates every ordered city pair per item and returns the
// opportunities clearing params.MinROI, sorted by ROI descending and
// truncated to params.MaxResults.
func Scan(prices []upstream.MarketPrice, params Params) []Opportunity {
	params = params.normalized()

	byItem := make(map[string][]*upstream.MarketPrice)
	order := make([]string, 0)
	for i := range prices {
		p := &prices[i]
		if p.ItemID == "" {
			continue
		}
		if _, ok := byItem[p.ItemID]; !ok {
			order = append(order, p.ItemID)
		}
		byItem[p.ItemID] = append(byItem[p.ItemID], p)
	}

	var out []Opportunity
	for _, itemID := range order {
		entries := byItem[itemID]
		for _, src := range entries {
			for _, dst := range entries {
				if src.City == dst.City {
					continue
				}
				if src.SellPriceMin <= 0 || dst.SellPriceMin <= 0 {
					continue
				}

				opp := evaluate(itemID, src, dst, params.WeightFactor)
				if opp.ROI >= params.MinROI {
					out = append(out, opp)
				}
			}
		}
	}

	// ROI descending; ties broken on identity so output is stable.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ROI != b.ROI {
			return a.ROI > b.ROI
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		if a.BuyCity != b.BuyCity {
			return a.BuyCity < b.BuyCity
		}
		return a.SellCity < b.SellCity
	})

	if len(out) > params.MaxResults {
		out = out[:params.MaxResults]
	}
	return out
}

// evaluate prices one buy-haul-list flip. Cost is the source city's
// cheapest sell order; revenue is the destination's cheapest sell price
// minus tax and setup fee.
func evaluate(itemID string, src, dst *upstream.MarketPrice, weightFactor float64) Opportunity {
	cost := float64(src.SellPriceMin)
	taxes := float64(dst.SellPriceMin) * (MarketTaxRate + SetupFeeRate)
	revenue := float64(dst.SellPriceMin) - taxes
	transport := Distance(src.City, dst.City) * SilverPerZone * weightFactor

	profit := revenue - cost - transport
	roi := profit / cost * 100

	return Opportunity{
		ItemID:        itemID,
		BuyCity:       src.City,
		SellCity:      dst.City,
		BuyQuality:    src.Quality,
		SellQuality:   dst.Quality,
		BuyPrice:      src.SellPriceMin,
		SellPrice:     dst.SellPriceMin,
		Profit:        profit,
		ROI:           roi,
		Taxes:         taxes,
		TransportCost: transport,
	}
}

// Distance returns the route length between two cities in zones.
func Distance(from, to string) float64 {
	if from == HubCity || to == HubCity {
		return HubDistance
	}
	return CrossCityDistance
}
