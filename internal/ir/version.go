package ir

// Version constants for the bridge protocol and the transition log.
const (
	// ProtocolVersion is the extension channel protocol version. Hosts log it
	// alongside the handshake digest.
	ProtocolVersion = "3"

	// LogVersion is the transition log record schema version. It is part of
	// every transition id, so a record layout change never collides with
	// ids written under an older layout.
	LogVersion = "1"
)
