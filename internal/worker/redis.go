package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"resolvego/internal/models"
	"resolvego/internal/redis"
)

const (
	redisInvalidateChannel = "worker:invalidate"
	redisStateTTL          = 30 * time.Minute
)

const (
	scopeUser    = "user"
	scopeInquiry = "inquiry"
)

type invalidateMessage struct {
	UserID    int64  `json:"user_id"`
	InquiryID int64  `json:"inquiry_id"`
	Scope     string `json:"scope"`
}

type stateRedis struct {
	client *redis.Client
}

func newStateCache(client *redis.Client) *stateRedis {
	return &stateRedis{client: client}
}

func inquiryStateKey(inquiryID int64) string {
	return fmt.Sprintf("worker:inquiry:%d", inquiryID)
}

func transcriptStateKey(inquiryID int64) string {
	return fmt.Sprintf("worker:transcript:%d", inquiryID)
}

// startListener consumes invalidation broadcasts from other instances.
func (r *stateRedis) startListener(handler func(invalidateMessage)) {
	if r == nil || r.client == nil || handler == nil {
		return
	}
	ctx := context.Background()
	pubsub, err := r.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		log.Printf("worker subscribe invalidations failed: %v", err)
		return
	}
	go func() {
		for msg := range pubsub.Channel() {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Printf("worker invalidation decode failed: %v", err)
				continue
			}
			handler(inv)
		}
	}()
}

// publishInvalidation broadcasts an invalidation to every instance.
func (r *stateRedis) publishInvalidation(msg invalidateMessage) {
	if r == nil || r.client == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("worker invalidation marshal failed: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), redisInvalidateChannel, payload); err != nil {
		log.Printf("worker publish invalidation failed: %v", err)
	}
}

func (r *stateRedis) cacheInquiry(inq *models.Inquiry, transcript []*models.Message) {
	if r == nil || r.client == nil || inq == nil || inq.ID <= 0 {
		return
	}
	ctx := context.Background()
	if err := r.client.SetJSON(ctx, inquiryStateKey(inq.ID), inq, redisStateTTL); err != nil {
		log.Printf("worker rdb inquiry failed: %v", err)
		return
	}
	if err := r.client.SetJSON(ctx, transcriptStateKey(inq.ID), transcript, redisStateTTL); err != nil {
		log.Printf("worker rdb transcript failed: %v", err)
	}
}

func (r *stateRedis) loadInquiry(userID, inquiryID int64) (*models.Inquiry, []*models.Message, bool) {
	if r == nil || r.client == nil || inquiryID <= 0 {
		return nil, nil, false
	}
	ctx := context.Background()
	var inq models.Inquiry
	if err := r.client.GetJSON(ctx, inquiryStateKey(inquiryID), &inq); err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("worker load inquiry rdb failed: %v", err)
		}
		return nil, nil, false
	}
	if inq.UserID != userID {
		return nil, nil, false
	}

	var transcript []*models.Message
	if err := r.client.GetJSON(ctx, transcriptStateKey(inquiryID), &transcript); err != nil && err != redis.ErrCacheMiss {
		log.Printf("worker load transcript rdb failed: %v", err)
	}
	return &inq, transcript, true
}

func (r *stateRedis) invalidateInquiry(inquiryID int64) {
	if r == nil || r.client == nil || inquiryID <= 0 {
		return
	}
	ctx := context.Background()
	if err := r.client.Del(ctx, inquiryStateKey(inquiryID), transcriptStateKey(inquiryID)); err != nil && err != redis.ErrCacheMiss {
		log.Printf("worker invalidate inquiry rdb failed: %v", err)
	}
}
