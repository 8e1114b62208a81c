package economy

import (
	"math"
	"time"
)

// MarketCrash scales every market-cap gain while active. It never expires on
// its own.
type MarketCrash struct {
	IsActive             bool       `json:"is_active"`
	GrowthRateMultiplier float64    `json:"growth_rate_multiplier"`
	ActivatedAt          *time.Time `json:"activated_at,omitempty"`
}

func NormalMarket() MarketCrash {
	return MarketCrash{GrowthRateMultiplier: 1.0}
}

func NewMarketCrash(isActive bool, multiplier float64, now time.Time) MarketCrash {
	if multiplier < 0 || math.IsNaN(multiplier) {
		multiplier = DefaultCrashMultiplier
	}
	c := MarketCrash{IsActive: isActive, GrowthRateMultiplier: multiplier}
	if isActive {
		at := now.UTC()
		c.ActivatedAt = &at
	}
	return c
}

func (c MarketCrash) Apply(baseGrowth float64) float64 {
	if !c.IsActive {
		return baseGrowth
	}
	return baseGrowth * c.GrowthRateMultiplier
}

// RespectGrowth is the market-cap gain for receiving amount respects.
func RespectGrowth(amount int64, crash MarketCrash) int64 {
	base := float64(amount * GrowthPerRespect)
	return int64(math.Floor(crash.Apply(base)))
}
