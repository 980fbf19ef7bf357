package ws

import "github.com/Wyydra/callrelay/internal/core/domain"

type Client interface {
	ID() domain.ConnID
	Close() error
}
