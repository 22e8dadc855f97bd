/*
Package resilience provides the circuit breaker used to keep unhealthy
upstreams (public CORS relays, slow origins) out of the hot path.

# Overview

A Breaker wraps calls to one upstream. After enough consecutive failures
it opens and rejects calls without touching the network until Timeout
has passed, then lets a limited number of trial calls through.

Set keeps one breaker per key, so each proxy template in the resolver's
ordered list is tracked independently.

# Usage

	proxies := resilience.NewSet(resilience.Settings{
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	ok, err := resilience.Do(proxies.Get(template), func() (bool, error) {
		return probe(ctx, template+escape(target))
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
