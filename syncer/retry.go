package syncer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// retryTransient runs op, retrying transient source and sink failures with
// bounded exponential backoff. Fatal categories (type conversion, unsupported
// constructs, config and checkpoint errors) surface immediately. The
// surrounding context bounds total retry time.
func retryTransient(ctx context.Context, desc string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // The context deadline is the cap.

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !core.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{"op": desc, "err": err}).Warn("transient failure, retrying")
		return err
	}, backoff.WithContext(bo, ctx))
}
