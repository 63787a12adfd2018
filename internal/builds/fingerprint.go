// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package builds

import (
	"strings"

	"github.com/amerel/killboard/internal/models"
)

// SlotNone marks an empty or untracked equipment slot in a fingerprint.
const SlotNone = "NONE"

// Fingerprint identifies a build archetype by its five normalized slots.
// Tier and enchant are deliberately ignored so a T5 and a T8 rendition of
// the same loadout aggregate into one build.
type Fingerprint struct {
	Weapon string
	Head   string
	Armor  string
	Shoes  string
	Cape   string
}

// Key renders the canonical "weapon|head|armor|shoes|cape" form used as
// the meta_builds primary key.
func (f Fingerprint) Key() string {
	return f.Weapon + "|" + f.Head + "|" + f.Armor + "|" + f.Shoes + "|" + f.Cape
}

// FromEquipment derives a fingerprint from an equipment snapshot. ok is
// false when both the weapon and armor slots are empty; such snapshots
// (naked kills, missing upstream data) carry no build signal and are
// discarded.
func FromEquipment(equip models.EquipmentSnapshot) (Fingerprint, bool) {
	fp := Fingerprint{
		Weapon: NormalizeSlot(equip.MainHand),
		Head:   NormalizeSlot(equip.Head),
		Armor:  NormalizeSlot(equip.Armor),
		Shoes:  NormalizeSlot(equip.Shoes),
		Cape:   NormalizeSlot(equip.Cape),
	}
	if fp.Weapon == SlotNone && fp.Armor == SlotNone {
		return Fingerprint{}, false
	}
	return fp, true
}

// NormalizeSlot maps one equipped item to its family identifier. Nil
// slots normalize to NONE.
func NormalizeSlot(item *models.EquipmentItem) string {
	if item == nil {
		return SlotNone
	}
	return NormalizeItemType(item.Type)
}

// NormalizeItemType strips the tier prefix ("T8_") and enchant suffix
// ("@3") from a raw item identifier: "T8_MAIN_HOLYSTAFF@3" becomes
// "MAIN_HOLYSTAFF". Identifiers without those markers pass through
// upper-cased.
func NormalizeItemType(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return SlotNone
	}

	// Tier prefix: 'T', one or more digits, '_'.
	if s[0] == 'T' {
		i := 1
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i > 1 && i < len(s) && s[i] == '_' {
			s = s[i+1:]
		}
	}

	// Enchant suffix: '@' and the enchant level.
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}

	if s == "" {
		return SlotNone
	}
	return s
}
