package market

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("price must be positive")
	ErrStaleTick    = errors.New("tick is older than the last observed tick")
)

type subscriber struct {
	id int
	h  TickHandler
}

// Feed is an in-memory push feed. Handlers run synchronously on the
// goroutine calling Push, in subscription order.
type Feed struct {
	mu     sync.Mutex
	last   *Tick
	subs   []subscriber
	nextID int
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Price() (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return decimal.Decimal{}, false
	}
	return f.last.Price, true
}

// Last returns the most recent tick.
func (f *Feed) Last() (Tick, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Tick{}, false
	}
	return *f.last, true
}

func (f *Feed) Subscribe(h TickHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscriber{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribe(id) })
	}
}

func (f *Feed) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of attached handlers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Push records t as the current price and notifies every handler. All
// handlers run even if one fails; their errors are joined.
func (f *Feed) Push(t Tick) error {
	if !t.Price.IsPositive() {
		return fmt.Errorf("push %s: %w", t.Price, ErrInvalidPrice)
	}

	f.mu.Lock()
	if f.last != nil && t.Time.Before(f.last.Time) {
		last := f.last.Time
		f.mu.Unlock()
		return fmt.Errorf("push at %s (last %s): %w", t.Time, last, ErrStaleTick)
	}
	f.last = &t
	subs := make([]subscriber, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.h(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
