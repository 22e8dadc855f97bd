/*
Package classifier decides whether a URL points at a PDF, an image, or
something it cannot tell.

Classification runs an ordered list of strategies, cheapest first, and
stops at the first definite answer:

	data-url     media type of a data: URL
	extension    file extension of the last path segment
	heuristic    path substrings such as /pdf or format=png
	header       direct HEAD, content type (network)
	proxied      HEAD through the resolver's proxy (network)
	signature    magic bytes of the first KiB (network)

Fast runs only the offline strategies and never touches the network.
Classify runs all of them; each network step has its own timeout and its
failures are logged and swallowed, so classification always ends with a
Kind.

The heuristic step is best-effort: a URL such as /images-archive/report
is reported as an image. It sits below every offline signal so a real
extension always wins, and Fast callers accept the trade-off.
*/
package classifier
