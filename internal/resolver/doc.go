/*
Package resolver turns a document URL into one this process can fetch.

Policy, first success wins:

 1. data: and blob: URLs pass through.
 2. Same-origin URLs (and URLs already routed through a known proxy)
    pass through.
 3. A direct HEAD with cross-origin checks.
 4. The caller's proxy template, trusted without a probe.
 5. For likely images, a direct HEAD without cross-origin checks.
 6. Each built-in proxy template in order, probed through the proxy.
 7. Otherwise the original URL, unchanged.

Resolve never fails. Each built-in proxy sits behind its own circuit
breaker so a dead relay is skipped without a network round trip, and
concurrent resolutions of the same URL share one set of probes.
*/
package resolver
