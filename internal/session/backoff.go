package session

import (
	"math/rand"
	"time"
)

const maxReconnectDelay = 5_000 * time.Millisecond

// reconnectDelay is min(5000, 200*2^min(attempt,6) + jitter[0,250)) ms.
// Jitter is drawn from math/rand's global source — cheap non-cryptographic
// randomness is enough here, no cryptographic property is needed for a
// reconnect stagger.
func reconnectDelay(attempt int) time.Duration {
	capped := attempt
	if capped > 6 {
		capped = 6
	}
	base := 200 * (1 << uint(capped))
	jitter := rand.Intn(250)
	delay := time.Duration(base+jitter) * time.Millisecond
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}
