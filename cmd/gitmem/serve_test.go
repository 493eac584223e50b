package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/gitmem/internal/config"
	"github.com/fyrsmithlabs/gitmem/internal/ledger"
)

type fakeServer struct {
	started  chan struct{}
	stop     chan struct{}
	startErr error
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{}), stop: make(chan struct{})}
}

func (f *fakeServer) Start() error {
	close(f.started)
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.stop)
	return nil
}

func TestServeUntilDone_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newFakeServer()

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, time.Second, zaptest.NewLogger(t)) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveUntilDone did not return")
	}
	assert.True(t, srv.shutdown.Load())
}

func TestServeUntilDone_StartFailure(t *testing.T) {
	srv := newFakeServer()
	srv.startErr = errors.New("address already in use")

	err := serveUntilDone(context.Background(), srv, time.Second, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "address already in use")
	assert.False(t, srv.shutdown.Load())
}

func TestStartNotesSync_Disabled(t *testing.T) {
	a := &app{cfg: config.Default()}
	stop, err := a.startNotesSync(context.Background())
	require.NoError(t, err)
	stop()
}

func TestStartNotesSync_ReconcilesForeignNotes(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t)

	a, err := openApp(ctx, &globalOptions{workdir: w.dir})
	require.NoError(t, err)
	defer a.Close()

	a.cfg.Ledger.Watch = true
	a.cfg.Ledger.WatchDebounce = config.Duration(20 * time.Millisecond)
	stop, err := a.startNotesSync(ctx)
	require.NoError(t, err)
	defer stop()

	// A note arriving from elsewhere, as after a fetch.
	const id = "mem_0123456789ab"
	notes := ledger.NewGitNotes(w.dir, a.cfg.Ledger.Namespace, zaptest.NewLogger(t))
	require.NoError(t, notes.Save(ctx, id, ledger.Record{
		ID:        id,
		Namespace: "decisions",
		Summary:   "fetched from origin",
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}))

	require.Eventually(t, func() bool {
		m, err := a.svc.Get(ctx, id)
		return err == nil && m != nil && m.Summary == "fetched from origin"
	}, 5*time.Second, 20*time.Millisecond)
}
