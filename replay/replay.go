package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/capwatch/account"
	"github.com/rustyeddy/capwatch/market"
)

// Options controls how replay behaves.
type Options struct {
	// If true: push the tick first, then apply the event, so a FILL
	// without a price books at that tick's price.
	TickThenEvent bool

	// SkipRejected logs fills the engine refuses for lack of funds
	// instead of stopping the replay.
	SkipRejected bool

	Logger *logrus.Entry
}

// Stats summarises a replay.
type Stats struct {
	Ticks    int
	Fills    int
	Rejected int
}

type replayer struct {
	feed  *market.Feed
	eng   *account.Engine
	opts  Options
	log   *logrus.Entry
	stats Stats
}

// CSV replays ticks from a CSV file and applies optional scripted events.
//
// CSV formats supported:
//
//  1. Basic ticks:
//     time,price
//
//  2. Ticks + events:
//     time,price,event,arg1,arg2
//
// Events (case-insensitive):
//
//	FILL:   arg1=amount  arg2=price (optional, defaults to the row price)
//	CLOSE:  flattens the open position at the row price
//
// Replay stops at the first bad row, when ctx is cancelled, or when a fill
// is rejected and SkipRejected is false. A liquidation raised by a tick is
// left to the engine's liquidation subscribers. Journal failures are logged
// and do not stop the replay; the fill or tick still counts.
func CSV(ctx context.Context, csvPath string, feed *market.Feed, eng *account.Engine, opts Options) (Stats, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	rp := &replayer{feed: feed, eng: eng, opts: opts, log: opts.Logger}
	if rp.log == nil {
		rp.log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Read first row and detect header or data.
	firstRow, err := r.Read()
	if err == io.EOF {
		return rp.stats, nil
	}
	if err != nil {
		return rp.stats, err
	}

	hasHeader := len(firstRow) > 0 && strings.EqualFold(strings.TrimSpace(firstRow[0]), "time")
	if !hasHeader {
		if err := rp.row(ctx, firstRow); err != nil {
			return rp.stats, err
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return rp.stats, nil
		}
		if err != nil {
			return rp.stats, err
		}
		if len(row) == 0 {
			continue
		}
		if err := rp.row(ctx, row); err != nil {
			return rp.stats, err
		}
	}
}

func (rp *replayer) row(ctx context.Context, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(row) < 2 {
		return fmt.Errorf("bad row (need at least 2 cols time,price): %v", row)
	}

	t, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	if err != nil {
		return fmt.Errorf("bad time %q: %w", row[0], err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(row[1]))
	if err != nil {
		return fmt.Errorf("bad price %q: %w", row[1], err)
	}
	tick := market.Tick{Time: t, Price: price}

	event := ""
	var args []string
	if len(row) >= 3 {
		event = strings.TrimSpace(row[2])
	}
	if len(row) >= 4 {
		args = row[3:]
		for i := range args {
			args[i] = strings.TrimSpace(args[i])
		}
	}

	if rp.opts.TickThenEvent {
		if err := rp.push(tick); err != nil {
			return err
		}
		if event != "" {
			return rp.event(event, args, price)
		}
		return nil
	}

	// Event first, then tick
	if event != "" {
		if err := rp.event(event, args, price); err != nil {
			return err
		}
	}
	return rp.push(tick)
}

func (rp *replayer) push(t market.Tick) error {
	rp.stats.Ticks++
	err := rp.feed.Push(t)
	if err != nil && account.Applied(err) {
		rp.log.WithField("time", t.Time).WithError(err).Warn("tick applied with errors")
		return nil
	}
	return err
}

func (rp *replayer) event(event string, args []string, rowPrice decimal.Decimal) error {
	switch strings.ToUpper(event) {
	case "FILL":
		// FILL,10,50.25
		amount, price, err := parseFillArgs(args, rowPrice)
		if err != nil {
			return fmt.Errorf("FILL: %w", err)
		}
		return rp.fill(amount, price)

	case "CLOSE":
		pos := rp.eng.PositionSize()
		if pos.IsZero() {
			return nil
		}
		return rp.fill(pos.Neg(), rowPrice)

	default:
		return fmt.Errorf("unknown event %q", event)
	}
}

func (rp *replayer) fill(amount, price decimal.Decimal) error {
	err := rp.eng.AddOrder(amount, price)
	var ferr *account.InsufficientFundError
	if errors.As(err, &ferr) && rp.opts.SkipRejected {
		rp.stats.Rejected++
		rp.log.WithFields(logrus.Fields{
			"amount": amount.String(),
			"price":  price.String(),
		}).Warn("skipping rejected fill")
		return nil
	}
	var jerr *account.JournalError
	if errors.As(err, &jerr) {
		rp.stats.Fills++
		rp.log.WithError(err).Error("fill booked but not journaled")
		return nil
	}
	if err != nil {
		return err
	}
	rp.stats.Fills++
	return nil
}

func parseFillArgs(args []string, rowPrice decimal.Decimal) (amount, price decimal.Decimal, err error) {
	if len(args) < 1 || args[0] == "" {
		return amount, price, fmt.Errorf("need arg1=amount")
	}
	amount, err = decimal.NewFromString(args[0])
	if err != nil {
		return amount, price, fmt.Errorf("bad amount %q: %w", args[0], err)
	}
	if amount.IsZero() {
		return amount, price, fmt.Errorf("amount must be non-zero")
	}
	price = rowPrice
	if len(args) >= 2 && args[1] != "" {
		price, err = decimal.NewFromString(args[1])
		if err != nil {
			return amount, price, fmt.Errorf("bad price %q: %w", args[1], err)
		}
	}
	return amount, price, nil
}
