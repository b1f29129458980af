package cache

import (
	"context"
	"encoding/json"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
)

// BookingCache is a read-through cache in front of the booking store. Every
// successful mutation deletes the cached row; cache trouble is logged and
// never surfaced to the caller.
type BookingCache struct {
	redis  *RedisCache
	logger *utils.Logger
}

func CreateBookingCache(redis *RedisCache) *BookingCache {
	return &BookingCache{
		redis:  redis,
		logger: utils.NewLogger("cache"),
	}
}

func (c *BookingCache) Get(ctx context.Context, id string) *models.Booking {
	if c.redis == nil {
		return nil
	}

	data, ok, err := c.redis.Get(ctx, bookingKey(id))
	if err != nil {
		c.logger.Warn(ctx, "booking cache read failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if !ok {
		return nil
	}

	var booking models.Booking
	if err := json.Unmarshal(data, &booking); err != nil {
		return nil
	}
	return &booking
}

func (c *BookingCache) Put(ctx context.Context, booking *models.Booking) {
	if c.redis == nil || booking == nil {
		return
	}

	data, err := json.Marshal(booking)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, bookingKey(booking.ID), data); err != nil {
		c.logger.Warn(ctx, "booking cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *BookingCache) Invalidate(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Delete(ctx, bookingKey(id)); err != nil {
		c.logger.Warn(ctx, "booking cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

func bookingKey(id string) string {
	return "booking:" + id
}
