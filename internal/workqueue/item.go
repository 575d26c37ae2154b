package workqueue

import "fmt"

// Kind tags the variant of an Item and selects its handler.
type Kind string

// KindStop is the sentinel kind queued by Stop. It never reaches a handler.
const KindStop Kind = "stop"

// Item is a unit of work. Its ID is unique per Queue and assigned at enqueue time.
type Item struct {
	ID      uint64
	Kind    Kind
	Payload any
}

func (i Item) String() string {
	return fmt.Sprintf("%s (id: %d): %v", i.Kind, i.ID, i.Payload)
}

// Handler processes one item on the worker goroutine.
type Handler func(Item) error
