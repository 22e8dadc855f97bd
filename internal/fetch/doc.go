/*
Package fetch is the single network client used by the classifier, the
resolver and the render engine.

It wraps resty over a retryable transport with a token bucket limiter and
a circuit breaker, and adds the three request shapes the viewer pipeline
needs:

  - Head: a metadata probe. ModeCORS emulates a browser cross-origin fetch
    by sending the app origin and requiring the response to allow it.
    ModeNoCORS only needs a 2xx status, like an image tag.
  - Range: the first bytes of a resource for signature sniffing.
  - Fetch: the full document body. data: URLs decode inline and blob:
    URLs read the blob registry without touching the network.

Timeouts come from the caller's context. Probes never retry; document
fetches retry with exponential backoff and trip the breaker after
repeated failures.
*/
package fetch
