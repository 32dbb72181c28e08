/*
Package resilience provides retry pacing for connections that drop.

# Overview

Backoff hands out exponentially growing delays (Min, 2*Min, 4*Min...) capped
at Max, and starts over after Reset. The client session uses it to redial the
server between 1s and 5s.

# Usage

	b := resilience.NewBackoff(time.Second, 5*time.Second)
	for {
		conn, err := dial(ctx)
		if err == nil {
			b.Reset()
			serve(conn)
			continue
		}
		if err := resilience.Sleep(ctx, b.Next()); err != nil {
			return err
		}
	}
*/
package resilience
