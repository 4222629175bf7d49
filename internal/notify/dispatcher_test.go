package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, alert Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func TestDispatcher_DeliversAndSurvivesFailures(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(a Alert) bool { return a.Kind == KindEntry })).Return(errors.New("boom")).Once()
	n.On("Notify", mock.Anything, mock.MatchedBy(func(a Alert) bool { return a.Kind == KindTarget })).Return(nil).Once()

	d := NewDispatcher(n, 10, zap.NewNop())
	d.Dispatch(Alert{Kind: KindEntry, Signal: eurusd()})
	d.Dispatch(Alert{Kind: KindTarget, Signal: eurusd(), Target: 1})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()

	n.AssertExpectations(t)
}

func TestDispatcher_BroadcastFlags(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.MatchedBy(func(a Alert) bool { return a.Kind == KindStop })).Return(nil).Once()

	d := NewDispatcher(n, 10, zap.NewNop())
	d.SetBroadcast(false, true)

	d.Dispatch(Alert{Kind: KindEntry, Signal: eurusd()})
	d.Dispatch(Alert{Kind: KindStop, Signal: eurusd()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()

	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(n, 1, zap.NewNop())
	d.Dispatch(Alert{Kind: KindEntry, Signal: eurusd()})
	d.Dispatch(Alert{Kind: KindEntry, Signal: eurusd()})

	assert.Len(t, d.queue, 1)
}
