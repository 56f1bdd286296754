package domain

import "math"

// Tier is a named rating band.
type Tier struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	MinRating uint32 `json:"min_rating"`
	MaxRating uint32 `json:"max_rating"`
}

// Tiers lists the bands in ascending order; they cover every uint32 rating.
var Tiers = []Tier{
	{Level: 1, Name: "Bronze Trader", MinRating: 0, MaxRating: 999},
	{Level: 2, Name: "Silver Trader", MinRating: 1000, MaxRating: 1199},
	{Level: 3, Name: "Gold Trader", MinRating: 1200, MaxRating: 1399},
	{Level: 4, Name: "Platinum Trader", MinRating: 1400, MaxRating: 1599},
	{Level: 5, Name: "Diamond Trader", MinRating: 1600, MaxRating: 1799},
	{Level: 6, Name: "Master Trader", MinRating: 1800, MaxRating: 1999},
	{Level: 7, Name: "Grandmaster", MinRating: 2000, MaxRating: 2299},
	{Level: 8, Name: "Legendary", MinRating: 2300, MaxRating: math.MaxUint32},
}

// TierFor returns the band containing rating.
func TierFor(rating uint32) Tier {
	for _, t := range Tiers {
		if rating >= t.MinRating && rating <= t.MaxRating {
			return t
		}
	}
	return Tiers[0]
}
