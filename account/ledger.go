package account

import "github.com/shopspring/decimal"

// Order is an open fill. A positive Amount is long, a negative Amount is short.
type Order struct {
	ID     string
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// Notional returns Amount × Price.
func (o Order) Notional() decimal.Decimal {
	return o.Amount.Mul(o.Price)
}

// Ledger is a FIFO double-ended queue of open orders. Index 0 is the oldest
// fill. Orders are stored by value; callers never hold a reference into it.
type Ledger struct {
	orders []Order
	head   int
}

func (l *Ledger) Len() int {
	return len(l.orders) - l.head
}

// At returns the i-th open order counting from the head.
func (l *Ledger) At(i int) Order {
	return l.orders[l.head+i]
}

func (l *Ledger) Front() (Order, bool) {
	if l.Len() == 0 {
		return Order{}, false
	}
	return l.orders[l.head], true
}

func (l *Ledger) PopFront() (Order, bool) {
	if l.Len() == 0 {
		return Order{}, false
	}
	o := l.orders[l.head]
	l.orders[l.head] = Order{}
	l.head++

	if l.head == len(l.orders) {
		l.orders = l.orders[:0]
		l.head = 0
	} else if l.head > 32 && l.head*2 > len(l.orders) {
		n := copy(l.orders, l.orders[l.head:])
		l.orders = l.orders[:n]
		l.head = 0
	}
	return o, true
}

func (l *Ledger) PushFront(o Order) {
	if l.head > 0 {
		l.head--
		l.orders[l.head] = o
		return
	}
	l.orders = append(l.orders, Order{})
	copy(l.orders[1:], l.orders)
	l.orders[0] = o
}

func (l *Ledger) PushBack(o Order) {
	l.orders = append(l.orders, o)
}

// Orders returns a copy of the open orders, oldest first.
func (l *Ledger) Orders() []Order {
	out := make([]Order, l.Len())
	copy(out, l.orders[l.head:])
	return out
}

// Size is the signed sum of open amounts.
func (l *Ledger) Size() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range l.orders[l.head:] {
		sum = sum.Add(o.Amount)
	}
	return sum
}

// Notional is the signed sum of Amount × Price over open orders.
func (l *Ledger) Notional() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range l.orders[l.head:] {
		sum = sum.Add(o.Notional())
	}
	return sum
}
