package scanner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robofleet/fleetstream/catalog"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/jobs"
	"github.com/robofleet/fleetstream/message"
	"github.com/robofleet/fleetstream/storage/relational"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	fail     error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *fakePublisher) last(t *testing.T) (string, message.ScanReply) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.payloads)
	var reply message.ScanReply
	require.NoError(t, json.Unmarshal(p.payloads[len(p.payloads)-1], &reply))
	return p.subjects[len(p.subjects)-1], reply
}

type responderFixture struct {
	responder *Responder
	publisher *fakePublisher
	store     *relational.MemoryStore
	tracker   *jobs.Tracker
}

func newResponderFixture(t *testing.T) *responderFixture {
	t.Helper()
	store := relational.NewMemoryStore()
	logger := slog.Default()
	eventLog := events.NewLogger(store, logger)
	tracker := jobs.NewTracker(store, eventLog, nil, logger)
	publisher := &fakePublisher{}
	cat := catalog.NewStaticCatalog([]catalog.Item{
		{Code: "QR-100", Name: "Battery Pack", Location: "shelf-a"},
		{Code: "QR-200", Name: "Gripper", Location: "shelf-b"},
	})
	responder := NewResponder(cat, tracker, publisher, message.NewClassifier("robots"), eventLog, nil, logger)
	return &responderFixture{responder: responder, publisher: publisher, store: store, tracker: tracker}
}

func TestHandleScanKnownCode(t *testing.T) {
	f := newResponderFixture(t)

	err := f.responder.HandleScan(context.Background(), &message.Scan{RobotID: "r1", Code: "QR-100"})
	require.NoError(t, err)

	subject, reply := f.publisher.last(t)
	assert.Equal(t, "robots.items.r1", subject)
	assert.True(t, reply.Found)
	assert.Equal(t, "QR-100", reply.Code)

	var item catalog.Item
	require.NoError(t, json.Unmarshal(reply.Item, &item))
	assert.Equal(t, "Battery Pack", item.Name)

	job, err := f.store.ActiveJob(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.ItemsDone)
	assert.Equal(t, "Battery Pack", job.LastItem)
}

func TestHandleScanUnknownCodeStillCountsItem(t *testing.T) {
	f := newResponderFixture(t)

	err := f.responder.HandleScan(context.Background(), &message.Scan{RobotID: "r1", Code: "QR-999"})
	require.NoError(t, err)

	_, reply := f.publisher.last(t)
	assert.False(t, reply.Found)
	assert.Equal(t, json.RawMessage("null"), reply.Item)

	job, err := f.store.ActiveJob(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.ItemsDone)
	assert.Equal(t, "QR-999", job.LastItem)
}

func TestHandleScanAdvancesExistingJob(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.Start(ctx, "r1", 2))
	require.NoError(t, f.responder.HandleScan(ctx, &message.Scan{RobotID: "r1", Code: "QR-100"}))
	require.NoError(t, f.responder.HandleScan(ctx, &message.Scan{RobotID: "r1", Code: "QR-200"}))

	job, err := f.store.ActiveJob(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.ItemsDone)
	assert.Equal(t, 100.0, job.PercentComplete)
}

func TestHandleScanLogsSystemEvent(t *testing.T) {
	f := newResponderFixture(t)

	require.NoError(t, f.responder.HandleScan(context.Background(), &message.Scan{RobotID: "r1", Code: "QR-100"}))

	var scanEvents int
	for _, e := range f.store.Events() {
		if e.Category == events.CategoryScan {
			scanEvents++
		}
	}
	assert.Equal(t, 1, scanEvents)
}

func TestHandleScanPublishFailure(t *testing.T) {
	f := newResponderFixture(t)
	f.publisher.fail = assert.AnError

	err := f.responder.HandleScan(context.Background(), &message.Scan{RobotID: "r1", Code: "QR-100"})
	assert.Error(t, err)

	// The item is still recorded; the scan happened even if the reply
	// could not be delivered.
	job, lookupErr := f.store.ActiveJob(context.Background(), "r1")
	require.NoError(t, lookupErr)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.ItemsDone)

	// So is the system event, one per scan regardless of delivery.
	var scanEvents int
	for _, e := range f.store.Events() {
		if e.Category == events.CategoryScan {
			scanEvents++
		}
	}
	assert.Equal(t, 1, scanEvents)
}
