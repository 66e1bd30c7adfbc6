package game

import (
	"math"
	"math/rand"
	"time"

	"bierbaron/config"
)

// CrashPointFromRandom maps a uniform r in [0,1) onto the crash distribution:
// 1/(1-r) rounded to two decimals, floored at config.MinCrashPoint.
func CrashPointFromRandom(r float64) float64 {
	if r < 0 || r >= 1 || math.IsNaN(r) {
		return config.MinCrashPoint
	}
	crash := RoundToDecimal(1/(1-r), config.MultiplierDecimal)
	return math.Max(config.MinCrashPoint, crash)
}

// GenerateCrashPoint draws a crash point from rng.
func GenerateCrashPoint(rng *rand.Rand) float64 {
	return CrashPointFromRandom(rng.Float64())
}

// CrashPointForSeed is the provably fair draw for a round: anyone holding the
// revealed server seed and the round id can recompute it.
func CrashPointForSeed(serverSeed, roundID string) float64 {
	return GenerateCrashPoint(roundRNG(serverSeed, roundID))
}

// MultiplierAt is the published growth curve: max(1.00, base^seconds), two decimals.
func MultiplierAt(elapsed time.Duration) float64 {
	m := math.Pow(config.MultiplierBase, elapsed.Seconds())
	return RoundToDecimal(math.Max(config.StartMultiplier, m), config.MultiplierDecimal)
}

// TickMultiplier is the multiplier shown on the n-th running tick, assuming
// ticks land exactly on the configured cadence.
func TickMultiplier(tick int) float64 {
	return MultiplierAt(time.Duration(tick) * config.TickInterval)
}

// FirstTickAtOrAbove returns the first tick multiplier >= target. A player
// aiming for target can lock in no earlier value than this.
func FirstTickAtOrAbove(target float64) float64 {
	for tick := 0; ; tick++ {
		if m := TickMultiplier(tick); m >= target {
			return m
		}
	}
}

// Payout is the credited amount for a cashout: floor(bet * multiplier).
// The multiplier is rounded first so float noise like 100*1.8=179.999... cannot
// shave a unit off.
func Payout(bet int64, multiplier float64) int64 {
	return int64(math.Floor(RoundToDecimal(float64(bet)*multiplier, 6)))
}

// SimulateHouseEdge plays rounds against the crash distribution with a player
// that always cashes out at the first tick reaching target, and returns the
// average amount returned per unit wagered. 1 - result is the house edge.
func SimulateHouseEdge(rng *rand.Rand, rounds int, target float64) float64 {
	if rounds <= 0 {
		return 0
	}
	cashout := FirstTickAtOrAbove(target)

	var returned float64
	for i := 0; i < rounds; i++ {
		crashPoint := GenerateCrashPoint(rng)
		// The tick reaching crashPoint ends the round, so only strictly lower
		// multipliers are ever offered for cashout.
		if cashout < crashPoint {
			returned += cashout
		}
	}
	return returned / float64(rounds)
}

// ExpectedReturn is the closed form of SimulateHouseEdge for a cashout
// multiplier c >= config.MinCrashPoint: c * P(crashPoint > c), where
// P(round2(1/(1-r)) > c) = 1/(c+0.005).
func ExpectedReturn(cashout float64) float64 {
	if cashout < config.MinCrashPoint {
		return cashout
	}
	return cashout / (cashout + 0.005)
}

// RoundToDecimal rounds a float to specified decimal places
func RoundToDecimal(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
