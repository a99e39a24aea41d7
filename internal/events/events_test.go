package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spotex/internal/models"
)

type capturePublisher struct {
	published []Event
}

func (c *capturePublisher) Publish(ev Event) {
	c.published = append(c.published, ev)
}

func TestRecorderRoutesMatchToBothParties(t *testing.T) {
	rec := &Recorder{}
	trade := models.Trade{
		ID:       1,
		BuyerID:  10,
		SellerID: 20,
		Symbol:   "BTC",
		Price:    decimal.RequireFromString("50000"),
		Amount:   decimal.RequireFromString("1"),
	}
	rec.OrderMatched(trade)

	staged := rec.Events()
	assert.Len(t, staged, 2)
	assert.Equal(t, int64(10), staged[0].UserID)
	assert.Equal(t, int64(20), staged[1].UserID)
	assert.Equal(t, NameOrderMatched, staged[0].Name)
	assert.Equal(t, 1, rec.Trades())
}

func TestRecorderStatusUpdateRoutesToOwner(t *testing.T) {
	rec := &Recorder{}
	order := models.Order{ID: 5, UserID: 7, Status: models.StatusFilled}
	rec.OrderStatusUpdated(order)

	staged := rec.Events()
	assert.Len(t, staged, 1)
	assert.Equal(t, int64(7), staged[0].UserID)
	assert.Equal(t, NameOrderStatusUpdated, staged[0].Name)
}

func TestRecorderResetDropsStagedEvents(t *testing.T) {
	rec := &Recorder{}
	rec.OrderStatusUpdated(models.Order{UserID: 1})
	rec.OrderMatched(models.Trade{BuyerID: 1, SellerID: 2})
	rec.Reset()

	assert.Empty(t, rec.Events())
	assert.Zero(t, rec.Trades())
}

func TestRecorderFlushPublishesAndClears(t *testing.T) {
	rec := &Recorder{}
	pub := &capturePublisher{}

	rec.OrderMatched(models.Trade{BuyerID: 1, SellerID: 2})
	rec.Flush(pub)

	assert.Len(t, pub.published, 2)
	assert.Empty(t, rec.Events())

	// Flushing again publishes nothing.
	rec.Flush(pub)
	assert.Len(t, pub.published, 2)
}

func TestRecorderFlushNilPublisher(t *testing.T) {
	rec := &Recorder{}
	rec.OrderStatusUpdated(models.Order{UserID: 1})
	// Must not panic without a publisher wired.
	rec.Flush(nil)
	assert.Empty(t, rec.Events())
}
