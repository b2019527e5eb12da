package worker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSubmitRunsJobs(t *testing.T) {
	p := NewPool(4, quietLogger())
	defer p.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			count.Add(1)
			wg.Done()
		})
		if !ok {
			t.Fatal("Submit returned false on an open pool")
		}
	}
	wg.Wait()
	if got := count.Load(); got != 50 {
		t.Errorf("ran %d jobs, want 50", got)
	}
}

func TestPanickingJobDoesNotKillPool(t *testing.T) {
	p := NewPool(1, quietLogger())
	defer p.Close()

	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })
	<-done
}

func TestSubmitAfterClose(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Close()
	if p.Submit(func() {}) {
		t.Error("Submit should return false after Close")
	}
	// Close is idempotent.
	p.Close()
}

func TestCloseWaitsForInflightJobs(t *testing.T) {
	p := NewPool(2, quietLogger())

	var ran atomic.Bool
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		ran.Store(true)
	})
	<-started
	p.Close()
	if !ran.Load() {
		t.Error("Close returned before the in-flight job finished")
	}
}
