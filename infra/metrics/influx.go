package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// InfluxSink writes tick statistics to an InfluxDB instance using the
// official client. Points are stamped with the simulation clock.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTick writes one fleetsim_tick point and one fleetsim_vehicles point
// per vehicle state.
func (s *InfluxSink) RecordTick(st coremetrics.TickStats) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	at := st.SimTime.Time()
	p := write.NewPointWithMeasurement("fleetsim_tick").
		AddTag("run_id", st.RunID).
		AddField("open_requests", st.OpenRequests).
		AddField("dispatched_requests", st.DispatchedRequests).
		AddField("chargers_in_use", st.ChargersInUse).
		AddField("chargers_queued", st.ChargersQueued).
		AddField("mean_soc", round3(st.MeanSOC)).
		AddField("instructions", st.Instructions).
		AddField("instruction_errors", st.InstructionErrors).
		AddField("update_errors", st.UpdateErrors).
		AddField("elapsed_ms", round3(float64(st.Elapsed.Microseconds())/1000)).
		SetTime(at)
	points := []*write.Point{p}
	for _, state := range sortedStates(st.VehiclesByState) {
		points = append(points, write.NewPointWithMeasurement("fleetsim_vehicles").
			AddTag("run_id", st.RunID).
			AddTag("state", state).
			AddField("count", st.VehiclesByState[state]).
			SetTime(at))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordRun writes a run lifecycle point stamped with wall time.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleetsim_run").
		AddTag("run_id", ev.RunID).
		AddTag("scenario", ev.Scenario).
		AddTag("status", string(ev.Status)).
		AddField("ticks", ev.Ticks).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
