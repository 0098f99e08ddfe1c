package channel

// Transport carries serialized messages between the host and one peer.
//
// Post delivers a message to the peer. Subscribe registers a listener for
// messages arriving from the peer side; on a shared transport the listener
// also sees traffic meant for other channels, which the channel filters by
// correlation id. Listeners must not block.
type Transport interface {
	Post(data []byte) error
	Subscribe(fn func(data []byte)) (unsubscribe func())
}
