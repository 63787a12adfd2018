// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package market

import (
	"math"
	"testing"

	"github.com/amerel/killboard/internal/models/upstream"
)

func price(itemID, city string, sellMin int64) upstream.MarketPrice {
	return upstream.MarketPrice{ItemID: itemID, City: city, SellPriceMin: sellMin, Quality: 1}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestScanFindsProfitableFlip(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 1000),
		price("T4_BAG", "Caerleon", 2000),
	}

	got := Scan(prices, Params{})
	if len(got) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(got))
	}

	opp := got[0]
	if opp.BuyCity != "Martlock" || opp.SellCity != "Caerleon" {
		t.Errorf("route = %s -> %s, want Martlock -> Caerleon", opp.BuyCity, opp.SellCity)
	}
	if opp.BuyPrice != 1000 || opp.SellPrice != 2000 {
		t.Errorf("prices = %d/%d", opp.BuyPrice, opp.SellPrice)
	}

	// 2000 * 6% tax, 8 zones to the hub at 100 silver each.
	if !almostEqual(opp.Taxes, 120) {
		t.Errorf("Taxes = %v, want 120", opp.Taxes)
	}
	if !almostEqual(opp.TransportCost, 800) {
		t.Errorf("TransportCost = %v, want 800", opp.TransportCost)
	}
	if !almostEqual(opp.Profit, 80) {
		t.Errorf("Profit = %v, want 80", opp.Profit)
	}
	if !almostEqual(opp.ROI, 8) {
		t.Errorf("ROI = %v, want 8", opp.ROI)
	}
}

func TestScanCrossRoyalDistance(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 1000),
		price("T4_BAG", "Lymhurst", 3000),
	}

	got := Scan(prices, Params{})
	if len(got) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(got))
	}

	opp := got[0]
	if !almostEqual(opp.TransportCost, 1200) {
		t.Errorf("TransportCost = %v, want 1200 for a cross-royal run", opp.TransportCost)
	}
	if !almostEqual(opp.Profit, 620) {
		t.Errorf("Profit = %v, want 620", opp.Profit)
	}
	if !almostEqual(opp.ROI, 62) {
		t.Errorf("ROI = %v, want 62", opp.ROI)
	}
}

func TestScanROIFloor(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 1000),
		price("T4_BAG", "Caerleon", 2000), // 8% ROI, see above
	}

	if got := Scan(prices, Params{MinROI: 10}); len(got) != 0 {
		t.Errorf("opportunities = %d, want 0 above a 10%% floor", len(got))
	}
	if got := Scan(prices, Params{MinROI: 5}); len(got) != 1 {
		t.Errorf("opportunities = %d, want 1 above a 5%% floor", len(got))
	}
}

func TestScanSkipsUnpriced(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 0), // no sell orders
		price("T4_BAG", "Caerleon", 2000),
	}

	if got := Scan(prices, Params{MinROI: -1000}); len(got) != 0 {
		t.Errorf("opportunities = %d, want 0 when one side is unpriced", len(got))
	}
}

func TestScanSameCitySkipped(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 1000),
		price("T4_BAG", "Martlock", 2000),
	}

	if got := Scan(prices, Params{MinROI: -1000}); len(got) != 0 {
		t.Errorf("opportunities = %d, want 0 within one city", len(got))
	}
}

func TestScanGroupsByItem(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 100),
		price("T5_BAG", "Caerleon", 90000),
	}

	if got := Scan(prices, Params{MinROI: -1000}); len(got) != 0 {
		t.Errorf("opportunities = %d, want 0 across different items", len(got))
	}
}

func TestScanSortsAndTruncates(t *testing.T) {
	// Three items with increasing spreads, so three distinct ROIs.
	prices := []upstream.MarketPrice{
		price("ITEM_A", "Martlock", 1000),
		price("ITEM_A", "Caerleon", 2000),
		price("ITEM_B", "Martlock", 1000),
		price("ITEM_B", "Caerleon", 3000),
		price("ITEM_C", "Martlock", 1000),
		price("ITEM_C", "Caerleon", 4000),
	}

	got := Scan(prices, Params{MaxResults: 2})
	if len(got) != 2 {
		t.Fatalf("opportunities = %d, want 2", len(got))
	}
	if got[0].ItemID != "ITEM_C" || got[1].ItemID != "ITEM_B" {
		t.Errorf("order = %s, %s, want ITEM_C then ITEM_B", got[0].ItemID, got[1].ItemID)
	}
	if got[0].ROI < got[1].ROI {
		t.Errorf("ROI not descending: %v then %v", got[0].ROI, got[1].ROI)
	}
}

func TestScanWeightFactor(t *testing.T) {
	prices := []upstream.MarketPrice{
		price("T4_BAG", "Martlock", 1000),
		price("T4_BAG", "Caerleon", 2000),
	}

	got := Scan(prices, Params{MinROI: -10000, WeightFactor: 2})
	if len(got) != 2 {
		t.Fatalf("opportunities = %d, want 2 (both directions kept)", len(got))
	}
	if !almostEqual(got[0].TransportCost, 1600) {
		t.Errorf("TransportCost = %v, want 1600 at weight factor 2", got[0].TransportCost)
	}
}

func TestScanQualityPassthrough(t *testing.T) {
	src := price("T4_BAG", "Martlock", 1000)
	src.Quality = 3
	dst := price("T4_BAG", "Caerleon", 2000)
	dst.Quality = 1

	got := Scan([]upstream.MarketPrice{src, dst}, Params{MinROI: -10000})
	if len(got) == 0 {
		t.Fatal("expected at least one opportunity")
	}
	if got[0].BuyQuality != 3 || got[0].SellQuality != 1 {
		t.Errorf("qualities = %d/%d, want 3/1", got[0].BuyQuality, got[0].SellQuality)
	}
}

func TestScanEmptyInput(t *testing.T) {
	if got := Scan(nil, Params{}); len(got) != 0 {
		t.Errorf("opportunities = %d, want 0 for empty input", len(got))
	}
}

func TestParamsNormalized(t *testing.T) {
	tests := []struct {
		name       string
		in         Params
		maxResults int
		weight     float64
	}{
		{"defaults", Params{}, DefaultMaxResults, 1},
		{"explicit", Params{MaxResults: 10, WeightFactor: 2.5}, 10, 2.5},
		{"at cap", Params{MaxResults: 200}, 200, 1},
		{"over cap", Params{MaxResults: 5000}, MaxResultsCap, 1},
		{"negative weight", Params{WeightFactor: -3}, DefaultMaxResults, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalized()
			if got.MaxResults != tt.maxResults {
				t.Errorf("MaxResults = %d, want %d", got.MaxResults, tt.maxResults)
			}
			if got.WeightFactor != tt.weight {
				t.Errorf("WeightFactor = %v, want %v", got.WeightFactor, tt.weight)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		from, to string
		want     float64
	}{
		{"Caerleon", "Martlock", 8},
		{"Martlock", "Caerleon", 8},
		{"Martlock", "Lymhurst", 12},
		{"Bridgewatch", "Thetford", 12},
	}

	for _, tt := range tests {
		if got := Distance(tt.from, tt.to); got != tt.want {
			t.Errorf("Distance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
