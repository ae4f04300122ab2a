package debounce_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/debounce"
)

type emission struct {
	value string
	at    time.Time
}

type recorder struct {
	mu    sync.Mutex
	calls []emission
	ch    chan emission
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan emission, 16)}
}

func (r *recorder) emit(v string) {
	e := emission{value: v, at: time.Now()}
	r.mu.Lock()
	r.calls = append(r.calls, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestDebouncerCoalescesBurstIntoLastValue(t *testing.T) {
	const quiet = 100 * time.Millisecond
	rec := newRecorder()
	d := debounce.New(quiet, rec.emit)
	defer d.Stop()

	var lastPush time.Time
	for i, v := range []string{"a", "ab", "abc"} {
		if i > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		lastPush = time.Now()
		d.Push(v)
	}
	assert.True(t, d.Pending())

	select {
	case e := <-rec.ch:
		assert.Equal(t, "abc", e.value)
		assert.GreaterOrEqual(t, e.at.Sub(lastPush), quiet)
	case <-time.After(2 * time.Second):
		t.Fatal("no emission")
	}

	// Nothing else may arrive.
	time.Sleep(3 * quiet)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "abc", d.Value())
	assert.False(t, d.Pending())
}

func TestDebouncerEmitsEachSettledValue(t *testing.T) {
	const quiet = 30 * time.Millisecond
	rec := newRecorder()
	d := debounce.New(quiet, rec.emit)
	defer d.Stop()

	d.Push("first")
	e := <-rec.ch
	require.Equal(t, "first", e.value)

	d.Push("second")
	e = <-rec.ch
	require.Equal(t, "second", e.value)
	assert.Equal(t, 2, rec.count())
}

func TestDebouncerStopCancelsPendingEmission(t *testing.T) {
	const quiet = 50 * time.Millisecond
	rec := newRecorder()
	d := debounce.New(quiet, rec.emit)

	d.Push("lost")
	d.Stop()
	d.Push("ignored")

	time.Sleep(4 * quiet)
	assert.Equal(t, 0, rec.count())
	assert.False(t, d.Pending())
	assert.Equal(t, "", d.Value())
}

func TestDebouncerDefaultsQuietPeriod(t *testing.T) {
	d := debounce.New[string](0, nil)
	defer d.Stop()
	assert.Equal(t, debounce.DefaultQuiet, d.Quiet())
}
