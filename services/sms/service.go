package sms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Queue item stored in Redis. One item per outgoing text.
type queuedSMS struct {
	Phones    []string  `json:"phones"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "sms:queue"

// staleAfter drops queued texts older than this instead of sending them late.
const staleAfter = 24 * time.Hour

// Sender is the delivery side of the service; *Client implements it.
type Sender interface {
	SendMass(ctx context.Context, phones []string, text string) error
}

// Service queues texts in Redis when enabled and sends them from a worker.
// Without Redis, or when the push fails, it sends directly.
type Service struct {
	sender   Sender
	redis    *redis.Client
	useRedis bool
}

// NewService builds the sink. rdb may be nil.
func NewService(sender Sender, rdb *redis.Client, useRedis bool) *Service {
	return &Service{
		sender:   sender,
		redis:    rdb,
		useRedis: useRedis && rdb != nil,
	}
}

// SendMass enqueues or sends text to phones.
func (s *Service) SendMass(ctx context.Context, phones []string, text string) error {
	if len(phones) == 0 {
		return errors.New("sms: no phone numbers")
	}
	q := queuedSMS{Phones: phones, Text: text, CreatedAt: time.Now().UTC()}

	if s.useRedis {
		b, err := json.Marshal(q)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("[sms] Redis queue failed, sending directly")
	}
	return s.sender.SendMass(ctx, phones, text)
}

// StartWorker polls the Redis queue until stop is closed.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("[sms] Redis queue disabled; worker not started")
		return
	}
	go func() {
		logrus.Info("[sms] Redis SMS worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				logrus.Info("[sms] Worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 100)
			}
		}
	}()
}

// flushBatch drains up to a few batches per tick with LRANGE + LTRIM.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("[sms] LTrim failed")
		}
		for _, raw := range vals {
			var q queuedSMS
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if time.Since(q.CreatedAt) > staleAfter {
				logrus.WithField("created_at", q.CreatedAt).Warn("[sms] Dropping stale message")
				continue
			}
			if err := s.sender.SendMass(ctx, q.Phones, q.Text); err != nil {
				logrus.WithError(err).Warn("[sms] Delivery failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}
