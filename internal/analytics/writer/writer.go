package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/sokolink-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/sokolink-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
	// maxRetainedRows bounds rows kept across failed flushes; the oldest go first.
	maxRetainedRows = 1000
)

type Config struct {
	PaymentEventsTable string
	BatchSize          int
	RetryPolicy        RetryPolicy
}

// RetryPolicy bounds retries of one streaming insert.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams payment_events rows. Each row carries its event_id
// as the insert id so BigQuery drops duplicates from retried inserts.
type BigQueryWriter struct {
	client    tableInserter
	table     string
	batchSize int
	policy    RetryPolicy

	mu      sync.Mutex
	pending []types.PaymentEventRow
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWriter(client, cfg)
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	table := strings.TrimSpace(cfg.PaymentEventsTable)
	if table == "" {
		return nil, errors.New("payment events table is required")
	}
	policy := cfg.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}
	if policy.MaximumBackoff < policy.InitialBackoff {
		policy.MaximumBackoff = max(defaultMaximumBackoff, policy.InitialBackoff)
	}
	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: max(cfg.BatchSize, defaultBatchSize),
		policy:    policy,
	}, nil
}

// InsertPaymentEvent buffers a payment_events row and flushes once the batch
// is full. When that flush fails, row is handed back to the caller (its
// message is nacked and redelivered) while rows of earlier, already acked
// messages stay buffered for the next flush.
func (w *BigQueryWriter) InsertPaymentEvent(ctx context.Context, row types.PaymentEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	if err := w.flushLocked(ctx); err != nil {
		w.pending = w.pending[:len(w.pending)-1]
		return err
	}
	return nil
}

// Buffered reports how many rows wait for the next flush.
func (w *BigQueryWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes any buffered rows immediately.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &cbigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].EventID})
	}

	if err := w.insert(ctx, rows); err != nil {
		if over := len(w.pending) - maxRetainedRows; over > 0 {
			w.pending = append([]types.PaymentEventRow(nil), w.pending[over:]...)
		}
		return err
	}
	w.pending = nil
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	backoff := retry.NewExponential(w.policy.InitialBackoff)
	backoff = retry.WithCappedDuration(w.policy.MaximumBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(w.policy.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d %s rows: %w", len(rows), w.table, err)
	}
	return nil
}

// transient reports whether every failure inside err is worth retrying.
// A batch with one schema error is not.
func transient(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}
	var rowsErr cbigquery.PutMultiError
	if errors.As(err, &rowsErr) {
		if len(rowsErr) == 0 {
			return false
		}
		for _, rowErr := range rowsErr {
			if !allTransient(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !transient(e) {
			return false
		}
	}
	return true
}
