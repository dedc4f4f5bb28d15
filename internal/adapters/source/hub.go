package source

import (
	"sync"

	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// Hub hands out named Memory queues so that producers in the embedding
// process and configured pipelines meet on the same queue.
type Hub struct {
	obs ports.Observability

	mu     sync.Mutex
	queues map[string]*Memory
}

func NewHub(obs ports.Observability) *Hub {
	return &Hub{obs: obs, queues: make(map[string]*Memory)}
}

// Queue returns the queue called name. A new queue is created with cfg when
// none exists or the existing one was closed and fully delivered; a closed
// queue still holding frames is returned as is. cfg is ignored for an
// existing queue.
func (h *Hub) Queue(name string, cfg MemoryConfig) (*Memory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if q, ok := h.queues[name]; ok && !q.spent() {
		return q, nil
	}
	q, err := NewMemory(name, cfg, h.obs)
	if err != nil {
		return nil, err
	}
	h.queues[name] = q
	return q, nil
}

// CloseAll closes every queue.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, q := range h.queues {
		_ = q.Close()
	}
}
