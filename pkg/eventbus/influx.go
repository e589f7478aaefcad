package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	influxMeasurement = "workflow_events"
	influxPingTimeout = 5 * time.Second
)

var ErrInfluxUnhealthy = errors.New("influxdb server not healthy")

// PointWriter is the subset of the non-blocking influx write API the sink uses.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxPublisher records every lifecycle event as a point in the workflow_events measurement.
type InfluxPublisher struct {
	writer PointWriter
	logger *slog.Logger
	close  func()
}

func NewInfluxPublisher(writer PointWriter, logger *slog.Logger) *InfluxPublisher {
	return &InfluxPublisher{
		writer: writer,
		logger: logger.With("module", "influx_event_sink"),
		close:  func() {},
	}
}

// ConnectInflux pings the server and returns a sink that batches writes to org/bucket.
func ConnectInflux(ctx context.Context, logger *slog.Logger, url, token, org, bucket string) (*InfluxPublisher, error) {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetBatchSize(100).SetFlushInterval(1000))

	pingCtx, cancel := context.WithTimeout(ctx, influxPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}

	if !healthy {
		client.Close()

		return nil, ErrInfluxUnhealthy
	}

	writeAPI := client.WriteAPI(org, bucket)
	publisher := NewInfluxPublisher(writeAPI, logger)
	publisher.close = client.Close

	go func() {
		for err := range writeAPI.Errors() {
			publisher.logger.Error("influx write failed", "error", err)
		}
	}()

	return publisher, nil
}

func (p *InfluxPublisher) Publish(_ context.Context, key string, event Event) error {
	tags := map[string]string{
		"event_type": string(event.GetType()),
	}
	fields := map[string]any{
		"count": 1,
		"key":   key,
	}
	timestamp := time.Now().UTC()

	if base, ok := baseOf(event); ok {
		tags["workflow_id"] = base.WorkflowID
		fields["execution_id"] = base.ExecutionID

		if !base.Timestamp.IsZero() {
			timestamp = base.Timestamp
		}
	}

	p.writer.WritePoint(write.NewPoint(influxMeasurement, tags, fields, timestamp))

	return nil
}

func (p *InfluxPublisher) Close() error {
	p.writer.Flush()
	p.close()

	return nil
}
