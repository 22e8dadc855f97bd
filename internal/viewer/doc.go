/*
Package viewer drives one document view at a time.

A Viewer owns a single source: the resolved descriptor, the classified
kind and, for PDFs, the render session. Loading a new source tears the
previous one down before anything else happens, so at most one session is
alive per viewer.

	v := manager.Create()
	err := v.Load(ctx, viewer.LoadRequest{URL: "https://example.com/a.pdf"})
	v.ZoomIn()
	img, err := v.PageImage(ctx, 1)

Controls (zoom, rotation, page, view mode, device pixel ratio) update the
state and re-render in the background. Subscribers receive every state
change as an Event.

Load failures are surfaced as an ErrorInfo on the state. Timeouts and
network failures are retried once automatically after RetryDelay. A
liveness monitor reloads the source when a PDF stops making progress.
*/
package viewer
