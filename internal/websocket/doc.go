// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

/*
Package websocket pushes open conversations and unread counts to browsers.

Each connection is a session owned by one authenticated viewer. A session
hosts any number of views; a view is one open conversation made of a
realtime.Thread (live message list) and a readstate.Tracker (debounced
mark-as-read). Views on different connections share nothing.

	┌──────────┐
	│   Hub    │ ← tracks sessions, closes them on shutdown
	└────┬─────┘
	     │
	┌────┴─────┬──────────┐
	│ Client 1 │ Client 2 │   one per connection
	├──────────┼──────────┤
	│ view k1  │ view k1  │   Thread + Tracker per open conversation
	│ view k2  │          │
	└──────────┴──────────┘

Client frames:

	{"type":"open",  "conversation_id":"c1:..."}
	{"type":"close", "conversation_id":"c1:..."}
	{"type":"focus", "conversation_id":"c1:..."}
	{"type":"blur",  "conversation_id":"c1:..."}
	{"type":"send",  "conversation_id":"c1:...", "message":{...draft...}}
	{"type":"ping"}

Server frames are {"type":..., "data":...} with types thread_snapshot,
thread_message, thread_status, unread_changed, error and pong.

unread_changed is sent once when the session starts, whenever a view of
the session marks messages read, and whenever a message addressed to the
viewer arrives in any conversation, open or not.

Each client has two goroutines:
  - readPump: reads frames and drives the views
  - writePump: writes queued frames and keepalive pings

A client whose send buffer fills up is disconnected; the browser reopens
its views and receives fresh snapshots.
*/
package websocket
