package events

// Envelope is one event as delivered to a subscriber.
type Envelope struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events whose topic matches pattern ("nego.>" for
	// everything). Call the returned cancel function to unsubscribe and
	// close the channel.
	Subscribe(pattern string) (<-chan Envelope, func(), error)
	Close() error
}
