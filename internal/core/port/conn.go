package port

import "github.com/Wyydra/callrelay/internal/core/domain"

// Conn is a participant's transport channel. Send must not block on network
// I/O: implementations enqueue and return, failing if the channel is gone or
// cannot keep up.
type Conn interface {
	ID() domain.ConnID
	Send(d domain.Delivery) error
	Close() error
}
