// Package channel implements the host side of the sandbox message channel.
//
// A Channel connects the host to one sandboxed peer that shares no memory with
// it and can only exchange serializable messages. The protocol is a small
// asynchronous request/response scheme carried as JSON.
//
// WIRE SHAPES:
//
//	host → peer call:   {"method": "valueChanged", "params": [...]}
//	handshake:          {"method": "connect", "params": [{"id": "<channel id>", ...}, [queued calls]]}
//	peer → host call:   {"source": "<channel id>", "method": "setValue", "callId": "7", "params": [...]}
//	host → peer result: {"id": "7", "result": ...}
//	host → peer error:  {"id": "7", "error": {"code": "...", "message": "...", "data": ...}}
//
// ORDERING:
//
// Calls sent before Connect are queued in arrival order and delivered exactly
// once, inside the handshake. Nothing reaches the transport before the
// handshake. After Connect, calls are posted in call order.
//
// CORRELATION:
//
// Each Channel owns a random correlation id generated at construction. Inbound
// traffic whose source does not match is dropped, so several channels may
// share one transport (one host window, several sandboxed surfaces).
//
// Handlers run as independent tasks. A handler's error or panic is reported
// back to the peer as an error response; unknown methods are ignored so peers
// can probe for capabilities.
package channel
