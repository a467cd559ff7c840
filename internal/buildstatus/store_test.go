package buildstatus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Transitions(t *testing.T) {
	s := NewStore()
	assert.Equal(t, Pending, s.Get())

	s.MarkDone()
	assert.Equal(t, Done, s.Get())

	s.MarkPending()
	assert.Equal(t, Pending, s.Get())
}

func TestStore_SinceOnlyMovesOnChange(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	s.now = func() time.Time { return clock }

	s.MarkDone()
	first := s.Since()
	clock = clock.Add(time.Minute)
	s.MarkDone()
	assert.Equal(t, first, s.Since())

	s.MarkPending()
	assert.Equal(t, clock, s.Since())
}

func TestStore_OnChange(t *testing.T) {
	s := NewStore()
	var seen []Status
	s.OnChange(func(st Status) { seen = append(seen, st) })

	s.MarkPending()
	s.MarkDone()

	assert.Equal(t, []Status{Pending, Done}, seen)
}

func TestStore_OnChangeCallsEveryObserverInOrder(t *testing.T) {
	s := NewStore()
	var calls []string
	s.OnChange(func(Status) { calls = append(calls, "first") })
	s.OnChange(func(Status) { calls = append(calls, "second") })

	s.MarkDone()

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st := s.Get()
				if st != Pending && st != Done {
					t.Errorf("unexpected status %q", st)
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		s.MarkPending()
		s.MarkDone()
	}
	wg.Wait()
}

func TestStore_ServeHTTP(t *testing.T) {
	s := NewStore()
	s.MarkDone()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, Done, snap.Status)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
