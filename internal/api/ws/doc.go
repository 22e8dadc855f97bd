// Package ws streams viewer events over WebSocket and accepts viewer
// commands on the same connection.
//
// Outbound frames are viewer events ({"type": "changed", "state": ...})
// plus "connected", "state", "pong" and "error" replies. Inbound frames
// name a command: ping, state, zoom_in, zoom_out, zoom_reset, set_zoom,
// rotate_left, rotate_right, next_page, prev_page, goto_page,
// toggle_mode, resize and retry.
package ws
