package waittime

import (
	"math/rand"
	"time"
)

const (
	syntheticMinMinutes = 15
	syntheticMaxMinutes = 90
)

// SyntheticWait returns a deterministic pseudo-random estimate in [15,90]
// minutes, seeded by the facility name's character codes plus the hour of
// day. The same name yields the same value within an hour and may differ
// across hours. The hour is taken from now's location as given (server-local
// in practice); no timezone normalization is applied.
func SyntheticWait(name string, now time.Time) int {
	seed := int64(now.Hour())
	for _, r := range name {
		seed += int64(r)
	}
	rng := rand.New(rand.NewSource(seed))
	return syntheticMinMinutes + rng.Intn(syntheticMaxMinutes-syntheticMinMinutes+1)
}
