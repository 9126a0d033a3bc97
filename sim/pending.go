package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/margin/order"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusPending  OrderStatus = "pending"
	StatusCanceled OrderStatus = "canceled"
)

// PendingOrder is an accepted non-market order. No trigger is evaluated
// for it and no margin is reserved; it stays pending until canceled.
type PendingOrder struct {
	ID        string
	Order     order.Order
	Status    OrderStatus
	CreatedAt time.Time
}

type pendingBook struct {
	orders map[string]*PendingOrder
	seq    []string
}

func newPendingBook() *pendingBook {
	return &pendingBook{orders: make(map[string]*PendingOrder)}
}

// add and list copy the order so callers never hold the book's pointers.
func (b *pendingBook) add(p PendingOrder) {
	p.Order = p.Order.Clone()
	b.orders[p.ID] = &p
	b.seq = append(b.seq, p.ID)
}

func (b *pendingBook) cancel(id string) (PendingOrder, error) {
	p, ok := b.orders[id]
	if !ok {
		return PendingOrder{}, fmt.Errorf("cancel %s: %w", id, ErrOrderNotFound)
	}
	delete(b.orders, id)
	for i, oid := range b.seq {
		if oid == id {
			b.seq = append(b.seq[:i], b.seq[i+1:]...)
			break
		}
	}
	p.Status = StatusCanceled
	p.Order = p.Order.Clone()
	return *p, nil
}

func (b *pendingBook) list() []PendingOrder {
	out := make([]PendingOrder, 0, len(b.seq))
	for _, id := range b.seq {
		p := *b.orders[id]
		p.Order = p.Order.Clone()
		out = append(out, p)
	}
	return out
}
