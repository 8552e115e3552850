package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

const verifyTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client writes payment analytics rows into one dataset. The dataset and
// the payment events table are provisioned out of band; NewClient and Ping
// only confirm they are reachable.
type Client struct {
	bq            *bigquery.Client
	dataset       *bigquery.Dataset
	paymentEvents string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	paymentEvents := strings.TrimSpace(cfg.PaymentEventsTable)
	if paymentEvents == "" {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, credentials(gcp)...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bigquery client")
	}
	c := &Client{bq: bq, dataset: bq.Dataset(datasetID), paymentEvents: paymentEvents}
	if err := c.verify(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":              datasetID,
			"payment_events_table": paymentEvents,
		}), "bigquery analytics sink ready")
	}
	return c, nil
}

// credentials prefers inline JSON over a key file; with neither the
// client falls back to application default credentials.
func credentials(gcp config.GCPConfig) []option.ClientOption {
	if strings.TrimSpace(gcp.CredentialsJSON) != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	}
	if strings.TrimSpace(gcp.ApplicationCredentials) != "" {
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) verify(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return missingOr(err, "dataset", c.dataset.DatasetID)
	}
	if _, err := c.dataset.Table(c.paymentEvents).Metadata(ctx); err != nil {
		return missingOr(err, "table", c.paymentEvents)
	}
	return nil
}

func missingOr(err error, kind, name string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("bigquery %s %q does not exist", kind, name))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("check bigquery %s %q", kind, name))
}

// Ping is used by the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	return c.verify(ctx)
}

// PaymentEventsTable is the configured table name, trimmed.
func (c *Client) PaymentEventsTable() string {
	if c == nil {
		return ""
	}
	return c.paymentEvents
}

// InsertRows streams rows into table. Rows must be ValueSavers or structs
// the BigQuery inserter can infer a schema for.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}
