// Package messaging contains middleware for communication with decoupled
// components of the crawler, the completion channels for the fetch and
// parse stages in particular.
package messaging

// Producer defines a producer behavior, exposes a single Produce method
// meant to enqueue a value of type T.
type Producer[T any] interface {
	Produce(T) error
}

// Consumer defines a consumer behavior, exposes a single Consume method
// meant to connect to a queue, blocking while consuming incoming values
// and forwarding them into a channel.
type Consumer[T any] interface {
	Consume(chan<- T) error
}

// ProducerConsumer defines the behavior of a simple message queue: a
// Produce function and a Consume one.
type ProducerConsumer[T any] interface {
	Producer[T]
	Consumer[T]
}

// ProducerConsumerCloser defines the behavior of a message queue that
// requires some kind of external connection or resource to be released.
type ProducerConsumerCloser[T any] interface {
	ProducerConsumer[T]
	Close()
}
