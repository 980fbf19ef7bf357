package ws

import (
	"sync"

	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub tracks every live websocket, joined or not, so they can be counted
// and closed together on shutdown.
type Hub struct {
	mu         sync.Mutex
	clients    map[domain.ConnID]Client
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.ConnID]Client),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			clients := make([]Client, 0, len(h.clients))
			for id, client := range h.clients {
				clients = append(clients, client)
				delete(h.clients, id)
			}
			h.mu.Unlock()

			for _, client := range clients {
				if err := client.Close(); err != nil {
					log.Debug().Err(err).Str("conn_id", client.ID().String()).Msg("Error closing client")
				}
			}
			log.Info().Int("count", len(clients)).Msg("Hub stopped, clients closed")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID()] = client
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("count", count).Str("conn_id", client.ID().String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.ID()]
			delete(h.clients, client.ID())
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				log.Debug().Int("count", count).Str("conn_id", client.ID().String()).Msg("Client unregistered")
			}
		}
	}
}

// Register adds c. After Stop it closes c instead.
func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		_ = c.Close()
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes every registered client and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}
