package pipeline

import (
	"sync"
	"time"
)

// Notice tells an author that an item shown optimistically was taken back.
type Notice struct {
	TxRef   string    `json:"tx_ref"`
	ItemID  uint      `json:"item_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const maxNoticesPerAuthor = 32

type Notices struct {
	mu    sync.Mutex
	items map[string][]Notice
}

func NewNotices() *Notices {
	return &Notices{items: make(map[string][]Notice)}
}

func (n *Notices) Push(author string, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	queue := append(n.items[author], notice)
	if len(queue) > maxNoticesPerAuthor {
		queue = queue[len(queue)-maxNoticesPerAuthor:]
	}
	n.items[author] = queue
}

// Drain returns and forgets the notices of an author.
func (n *Notices) Drain(author string) []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items[author]
	delete(n.items, author)
	return out
}
