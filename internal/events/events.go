// Package events carries the typed notifications the engine produces
// and the per-user delivery fan-out.
package events

import (
	"spotex/internal/models"
)

// Wire names of the two event kinds.
const (
	NameOrderMatched       = "order.matched"
	NameOrderStatusUpdated = "order.status.updated"
)

// Event is one notification routed to a single user's channel.
type Event struct {
	UserID int64
	Name   string
	Data   any
}

// OrderMatchedPayload is sent to both sides of a trade.
type OrderMatchedPayload struct {
	Trade models.Trade `json:"trade"`
}

// OrderStatusUpdatedPayload is sent to an order's owner on a terminal
// transition.
type OrderStatusUpdatedPayload struct {
	Order models.Order `json:"order"`
}

// Publisher delivers events to per-user channels. Delivery is best
// effort; a slow or gone subscriber never blocks the engine.
type Publisher interface {
	Publish(Event)
}

// Recorder stages events while a transaction is in flight. The engine
// flushes it only after commit, so a rolled-back match never notifies
// anyone. Reset is called at the top of each transaction attempt so a
// retried transaction does not stage duplicates.
type Recorder struct {
	events []Event
	trades int
}

func (r *Recorder) Reset() {
	r.events = r.events[:0]
	r.trades = 0
}

// OrderMatched stages one event per trade for each of the two parties.
func (r *Recorder) OrderMatched(trade models.Trade) {
	payload := OrderMatchedPayload{Trade: trade}
	r.events = append(r.events,
		Event{UserID: trade.BuyerID, Name: NameOrderMatched, Data: payload},
		Event{UserID: trade.SellerID, Name: NameOrderMatched, Data: payload},
	)
	r.trades++
}

// OrderStatusUpdated stages a terminal-transition event for the owner.
func (r *Recorder) OrderStatusUpdated(order models.Order) {
	r.events = append(r.events, Event{
		UserID: order.UserID,
		Name:   NameOrderStatusUpdated,
		Data:   OrderStatusUpdatedPayload{Order: order},
	})
}

// Trades reports how many trades were staged since the last Reset.
func (r *Recorder) Trades() int {
	return r.trades
}

// Events exposes the staged events; used by tests and Flush.
func (r *Recorder) Events() []Event {
	return r.events
}

// Flush publishes all staged events and clears the recorder.
func (r *Recorder) Flush(p Publisher) {
	if p != nil {
		for _, ev := range r.events {
			p.Publish(ev)
		}
	}
	r.Reset()
}
