package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/postpilot/link-server-go/internal/linkstore"
	"github.com/postpilot/link-server-go/internal/model"
)

type mockAppSessionRepo struct {
	deleteExpiredCount int64
}

func (m *mockAppSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.AppSession, error) {
	return nil, nil
}

func (m *mockAppSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return m.deleteExpiredCount, nil
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, nil, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		job := NewCleanupJob(&mockAppSessionRepo{}, linkstore.NewMemoryStore(0), 100*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()
	})

	t.Run("runs cleanup on start", func(t *testing.T) {
		sessionRepo := &mockAppSessionRepo{deleteExpiredCount: 2}
		store := linkstore.NewMemoryStore(0)

		job := NewCleanupJob(sessionRepo, store, 1*time.Hour)

		job.Start()
		time.Sleep(10 * time.Millisecond)
		job.Stop()
	})
}
