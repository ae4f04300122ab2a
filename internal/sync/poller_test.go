package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/complaint-desk/internal/logging"
)

func waitMsg(t *testing.T, p *Poller) ChangedMsg {
	t.Helper()
	done := make(chan ChangedMsg, 1)
	go func() {
		msg, _ := p.WaitForNextResult()().(ChangedMsg)
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return ChangedMsg{}
	}
}

func TestForwardsChangeNotifications(t *testing.T) {
	p := New(logging.Discard())
	complaints := make(chan struct{}, 1)
	categories := make(chan struct{}, 1)
	p.Register(SourceComplaints, complaints, nil)
	p.Register(SourceCategories, categories, nil)

	require.NotNil(t, p.Start())
	defer p.Stop()
	assert.Nil(t, p.Start())

	categories <- struct{}{}
	assert.Equal(t, SourceCategories, waitMsg(t, p).Source)

	complaints <- struct{}{}
	assert.Equal(t, SourceComplaints, waitMsg(t, p).Source)
}

func TestNotify(t *testing.T) {
	p := New(logging.Discard())
	p.Start()
	defer p.Stop()

	p.Notify(SourceSession)
	assert.Equal(t, SourceSession, waitMsg(t, p).Source)
}

func TestStopReleasesWaiters(t *testing.T) {
	p := New(logging.Discard())
	cmd := p.Start()

	done := make(chan struct{})
	go func() {
		assert.Nil(t, cmd())
		close(done)
	}()

	p.Stop()
	p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released")
	}
}

func TestRefreshAllTracksStatus(t *testing.T) {
	p := New(logging.Discard())
	okCalled := make(chan struct{})
	failCalled := make(chan struct{})

	p.Register(SourceComplaints, nil, func(ctx context.Context) error {
		defer close(okCalled)
		return nil
	})
	p.Register(SourceCategories, nil, func(ctx context.Context) error {
		defer close(failCalled)
		return errors.New("boom")
	})
	p.Register(SourceSession, nil, nil)

	p.RefreshAll()
	<-okCalled
	<-failCalled

	require.Eventually(t, func() bool {
		st := p.GetStatuses()
		return st[0].State == SyncIdle && !st[0].LastSync.IsZero() && st[1].State == SyncError
	}, 2*time.Second, 10*time.Millisecond)

	st := p.GetStatuses()
	require.Len(t, st, 3)
	assert.EqualError(t, st[1].Error, "boom")
	assert.Equal(t, SyncIdle, st[2].State)
}
