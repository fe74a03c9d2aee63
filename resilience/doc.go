// Package resilience provides the fault-tolerance primitives used by the
// transport and the connection pools.
//
//   - Retry: re-issues idempotent requests with exponential backoff
//   - CircuitBreaker: fails fast while an origin keeps failing
//   - RateLimiter: token bucket pacing for outgoing requests
//   - Bulkhead: counted slots; each pool lease holds exactly one
//
// A transport combines them per request:
//
//	if err := rl.Wait(ctx); err != nil {
//	    return nil, err
//	}
//	return resilience.Retry(ctx, retryCfg, func() (*State, error) {
//	    var st *State
//	    err := cb.Execute(func() error {
//	        var err error
//	        st, err = issueOnce(ctx, params)
//	        return err
//	    })
//	    return st, err
//	})
package resilience
