package auth

import (
	"context"
	"log"
	"time"
)

const DefaultTokenCleanupInterval = time.Hour

// StartTokenCleaner periodically purges expired tokens until ctx is done.
func (s *Service) StartTokenCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cleanupExpiredTokens(ctx); err != nil {
				log.Printf("cleanup expired tokens error: %v", err)
			}
		}
	}
}

func (s *Service) cleanupExpiredTokens(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
