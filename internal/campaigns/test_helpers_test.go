package campaigns

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type sequentialIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%03d", p.next), nil
}

type failingIDProvider struct {
	err error
}

func (p failingIDProvider) NewID() (string, error) {
	return "", p.err
}

type recordingNotifier struct {
	mu         sync.Mutex
	activities []Activity
}

func (n *recordingNotifier) NotifyActivity(activity Activity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activities = append(n.activities, activity)
}

func (n *recordingNotifier) received() []Activity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Activity(nil), n.activities...)
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Unix(1750000000, 0)
	}
}

func newTestService(t *testing.T, capacity int, strict bool, notifiers ...ActivityNotifier) *Service {
	t.Helper()
	repository, err := NewMemoryRepository(capacity)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Repository:       repository,
		Clock:            fixedClock(),
		IDProvider:       &sequentialIDProvider{},
		Notifiers:        notifiers,
		StrictReferences: strict,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}
