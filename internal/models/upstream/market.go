// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package upstream

// MarketPrice is one entry of GET /prices, and also the accepted shape
// for price payloads posted directly to the market scan endpoint.
type MarketPrice struct {
	ItemID       string `json:"item_id" validate:"required"`
	City         string `json:"city" validate:"required"`
	SellPriceMin int64  `json:"sell_price_min" validate:"gte=0"`
	BuyPriceMax  int64  `json:"buy_price_max" validate:"gte=0"`
	Quality      int    `json:"quality" validate:"gte=0"`
}
