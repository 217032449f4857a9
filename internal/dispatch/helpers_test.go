package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/database"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

func testDB(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return store.NewStore(db)
}

func testPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		ReleaseDelays:     []time.Duration{3 * time.Minute, 5 * time.Minute, 10 * time.Minute},
		PauseCheckTTL:     30 * time.Second,
		PauseReleaseDelay: 2 * time.Minute,
		LockTTL:           time.Minute,
	}
}

// fakeSender records send attempts and replays configured results.
type fakeSender struct {
	mu      sync.Mutex
	calls   []whatsapp.TemplateSend
	results []whatsapp.SendResult
}

func (f *fakeSender) SendTemplate(t whatsapp.TemplateSend) whatsapp.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	if len(f.results) == 0 {
		return whatsapp.SendResult{Success: true, MessageID: "wamid.TEST", HTTPStatus: 200}
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) lastCall() whatsapp.TemplateSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// recordingQueue captures Release calls without redelivering.
type recordingQueue struct {
	mu       sync.Mutex
	released []releasedJob
}

type releasedJob struct {
	queueName string
	job       queue.Job
	delay     time.Duration
}

func (q *recordingQueue) Publish(_ context.Context, queueName string, job queue.Job) error {
	return q.Release(context.Background(), queueName, job, 0)
}

func (q *recordingQueue) Release(_ context.Context, queueName string, job queue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, releasedJob{queueName: queueName, job: job, delay: delay})
	return nil
}

func (q *recordingQueue) releases() []releasedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]releasedJob, len(q.released))
	copy(out, q.released)
	return out
}
