package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Compensations is an ordered list of undo actions for side effects that live
// outside the database (blob writes, queue messages). The actions run in
// reverse registration order when the surrounding transaction does not commit.
type Compensations struct {
	mu      sync.Mutex
	actions []func(ctx context.Context) error
}

// Add registers an undo action.
func (c *Compensations) Add(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, fn)
}

// Len reports how many actions are registered.
func (c *Compensations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

// Run executes every registered action, last one first, and clears the list.
// All actions run even if some fail; the failures are joined.
func (c *Compensations) Run(ctx context.Context) error {
	c.mu.Lock()
	actions := c.actions
	c.actions = nil
	c.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		if err := actions[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithTxCompensated behaves like WithTx, but when the transaction fails to
// commit for any reason (begin error, fn error, commit error or panic) the
// registered compensations are executed before returning. The original error
// is preserved for errors.Is; a compensation failure is appended to its text.
//
// Compensations run on a context detached from ctx cancellation so that an
// abandoned request still cleans up after itself.
func WithTxCompensated(ctx context.Context, db *sql.DB, opts *sql.TxOptions, comp *Compensations, fn func(ctx context.Context, tx DBTX) error) (err error) {
	if comp == nil {
		comp = &Compensations{}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = comp.Run(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if cerr := comp.Run(context.WithoutCancel(ctx)); cerr != nil {
				err = fmt.Errorf("%w; compensation failed: %v", err, cerr)
			}
		}
	}()

	return WithTx(ctx, db, opts, fn)
}
