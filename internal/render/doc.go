/*
Package render drives a paginated bitmap renderer for one opened PDF.

An Engine opens a source URL into a Session (fetch, then decode, under a
hard open timeout). A Session renders pages onto Surfaces and hands back
an Operation per call. For any (page, surface) pair only the most recently
started Operation may draw: starting a new one cancels the previous one,
and a superseded Operation that finishes late is discarded.

Decoding is behind the Decoder/Document/Page interfaces; the pdfcpu
subpackage is the default backend. Page draws for one session are
serialized, since a document handle is not safe for concurrent passes.

Session states:

	Opening -> Ready <-> Rendering
	Opening -> Failed
	any     -> Closed
*/
package render
