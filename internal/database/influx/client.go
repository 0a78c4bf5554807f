// Package influx provides time-series metrics for payd: share throughput,
// block luck, payout volume and pipeline run timings.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// Accounting metrics

// WriteShareMetric writes one recorded share
func (c *Client) WriteShareMetric(pool, chain, worker, kind string, work float64, solo bool) {
	tags := map[string]string{
		"pool":  pool,
		"chain": chain,
		"kind":  kind,
		"solo":  fmt.Sprintf("%t", solo),
	}

	fields := map[string]interface{}{
		"worker": worker,
		"work":   work,
		"count":  1,
	}

	point := write.NewPoint("shares", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteBlockMetric writes a block discovery or resolution
func (c *Client) WriteBlockMetric(pool, chain string, height int64, category string, reward, luck float64) {
	tags := map[string]string{
		"pool":     pool,
		"chain":    chain,
		"category": category,
	}

	fields := map[string]interface{}{
		"height": height,
		"reward": reward,
		"luck":   luck,
		"count":  1,
	}

	point := write.NewPoint("blocks", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePayoutMetric writes one completed payout
func (c *Client) WritePayoutMetric(pool, chain string, miners int, totalPaid float64) {
	tags := map[string]string{
		"pool":  pool,
		"chain": chain,
	}

	fields := map[string]interface{}{
		"miners":     miners,
		"total_paid": totalPaid,
		"count":      1,
	}

	point := write.NewPoint("payouts", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePipelineRunMetric writes one settlement pipeline run
func (c *Client) WritePipelineRunMetric(pool, chain, mode string, rounds int, duration time.Duration) {
	tags := map[string]string{
		"pool":  pool,
		"chain": chain,
		"mode":  mode,
	}

	fields := map[string]interface{}{
		"rounds":      rounds,
		"duration_ms": float64(duration.Milliseconds()),
		"count":       1,
	}

	point := write.NewPoint("pipeline_runs", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Query methods

// GetAverageLuck retrieves the mean block luck for a chain over a window
func (c *Client) GetAverageLuck(ctx context.Context, pool, chain string, duration time.Duration) (float64, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "blocks")
		|> filter(fn: (r) => r.pool == "%s")
		|> filter(fn: (r) => r.chain == "%s")
		|> filter(fn: (r) => r._field == "luck")
		|> mean()
	`, c.bucket, duration.String(), pool, chain)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query average luck: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	if result.Next() {
		if luck, ok := result.Record().Value().(float64); ok {
			return luck, nil
		}
	}

	if result.Err() != nil {
		return 0, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return 0, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
