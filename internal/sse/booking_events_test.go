package sse_test

import (
	"context"
	"testing"
	"time"

	"ms-settlement/internal/models"
	"ms-settlement/internal/sse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesBothSidesOfBooking(t *testing.T) {
	emitter := sse.NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	talentChan := emitter.SubscribeToTalent(ctx, "talent-1")
	customerChan := emitter.SubscribeToCustomer(ctx, "customer-1")
	otherChan := emitter.SubscribeToTalent(ctx, "talent-2")

	booking := models.Booking{ID: "bkg_1", TalentID: "talent-1", CustomerID: "customer-1", Status: models.BookingConfirmed}
	emitter.EmitBookingUpdate(booking)

	select {
	case got := <-talentChan:
		assert.Equal(t, "bkg_1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("talent subscriber did not receive the update")
	}

	select {
	case got := <-customerChan:
		assert.Equal(t, "bkg_1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("customer subscriber did not receive the update")
	}

	select {
	case <-otherChan:
		t.Fatal("unrelated talent received the update")
	default:
	}
}

func TestSlowSubscriberDoesNotBlockEmit(t *testing.T) {
	emitter := sse.NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter.SubscribeToTalent(ctx, "talent-1")

	// The channel buffer holds 10; further emits are dropped, not blocked.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			emitter.EmitBookingUpdate(models.Booking{ID: "bkg_1", TalentID: "talent-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestSubscriberRemovedOnContextCancel(t *testing.T) {
	emitter := sse.NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.SubscribeToTalent(ctx, "talent-1")
	require.Equal(t, 1, emitter.GetTalentClientCount("talent-1"))

	cancel()

	deadline := time.After(time.Second)
	for emitter.GetTalentClientCount("talent-1") != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber was not removed after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}

	_, open := <-ch
	assert.False(t, open, "channel should be closed after removal")
}

func TestNilEmitterDropsUpdates(t *testing.T) {
	var emitter *sse.BookingEventEmitter
	emitter.EmitBookingUpdate(models.Booking{ID: "bkg_1"})
}
