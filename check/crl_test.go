package check

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRefresher struct {
	mu          sync.Mutex
	list        *x509.RevocationList
	listErr     error
	regenerated int
}

func (f *fakeRefresher) CRL() (*x509.RevocationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.listErr
}

func (f *fakeRefresher) RegenerateCRL() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regenerated++
	return nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regenerated
}

func TestCheckCRL(t *testing.T) {
	thisUpdate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{list: &x509.RevocationList{
		ThisUpdate: thisUpdate,
		NextUpdate: thisUpdate.Add(24 * time.Hour),
	}}

	assert.False(t, checkCRL(refresher, thisUpdate.Add(time.Hour)))
	assert.True(t, checkCRL(refresher, thisUpdate.Add(12*time.Hour)))
	assert.Equal(t, 1, refresher.count())

	refresher.listErr = errors.New("no crl")
	assert.True(t, checkCRL(refresher, thisUpdate))
	assert.Equal(t, 2, refresher.count())
}

func TestRefreshCRLStopsOnCancel(t *testing.T) {
	refresher := &fakeRefresher{listErr: errors.New("no crl")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RefreshCRL(ctx, refresher, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool { return refresher.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RefreshCRL did not stop")
	}
}
