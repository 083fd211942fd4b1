package domain

import "math"

const (
	// KilometersPerStep is the fixed stride length (0.7 m) used to turn steps into distance.
	KilometersPerStep = 0.0007
	// RewardDistanceKm is the distance that earns an egg and each additional rare candy.
	RewardDistanceKm = 5.0
)

// RewardFor applies the reward rule to a finished workout distance:
// one egg at 5 km or more, and one rare candy per full 5 km.
func RewardFor(distanceKm float64) Reward {
	if !validDistance(distanceKm) {
		return Reward{}
	}
	reward := Reward{Candies: int(math.Floor(distanceKm / RewardDistanceKm))}
	if distanceKm >= RewardDistanceKm {
		reward.Eggs = 1
	}
	return reward
}

// DistanceForSteps converts a session step count into kilometres.
func DistanceForSteps(steps int) float64 {
	if steps <= 0 {
		return 0
	}
	return float64(steps) * KilometersPerStep
}
