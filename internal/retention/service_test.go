package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type prunerMock struct {
	mock.Mock
}

func (m *prunerMock) PruneExtractions(before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

func TestPruneUsesCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := new(prunerMock)
	store.On("PruneExtractions", now.Add(-48*time.Hour)).Return(int64(3), nil).Once()

	s := NewService(store, 48*time.Hour)
	s.now = func() time.Time { return now }

	assert.Equal(t, int64(3), s.prune())
	store.AssertExpectations(t)
}

func TestPruneError(t *testing.T) {
	store := new(prunerMock)
	store.On("PruneExtractions", mock.Anything).Return(int64(0), errors.New("disk I/O error"))

	assert.Zero(t, NewService(store, time.Hour).prune())
}

func TestRunDisabled(t *testing.T) {
	store := new(prunerMock)

	NewService(store, 0).Run(context.Background())

	store.AssertNotCalled(t, "PruneExtractions", mock.Anything)
}

func TestRunPrunesUntilCancelled(t *testing.T) {
	store := new(prunerMock)
	pruned := make(chan struct{}, 10)
	store.On("PruneExtractions", mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		select {
		case pruned <- struct{}{}:
		default:
		}
	})

	s := NewService(store, time.Hour)
	s.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-pruned:
		case <-time.After(time.Second):
			t.Fatal("prune was not called")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPruneAgainstStore(t *testing.T) {
	key, err := storage.DeriveKey("test-passphrase")
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(":memory:", key)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.SaveExtraction(1, "gallery", "cin.jpg", map[string]string{"nom": "X"})
	require.NoError(t, err)

	s := NewService(store, time.Hour)
	assert.Zero(t, s.prune())

	// Two hours later the record is past the one hour window.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, int64(1), s.prune())

	list, err := store.GetExtractionsByUser(1, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
