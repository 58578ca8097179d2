//go:build integration

package metrics

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
)

const (
	influxOrg    = "fleetsim"
	influxBucket = "runs"
	influxToken  = "fleetsim-test-token"
)

// startInflux runs an InfluxDB 2.7 container initialised with the test org,
// bucket and token.
func startInflux(ctx context.Context, t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "fleetsim",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "fleetsim-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "8086")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestInfluxSinkWritesTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	url := startInflux(ctx, t)

	sink := NewInfluxSinkWithFallback(url, influxToken, influxOrg, influxBucket)
	influx, ok := sink.(*InfluxSink)
	require.True(t, ok, "health check failed, got %T", sink)
	defer influx.Close()

	now := model.SimTime(time.Now().Unix())
	require.NoError(t, influx.RecordTick(coremetrics.TickStats{
		RunID:           "run-1",
		SimTime:         now,
		VehiclesByState: map[string]int{"idle": 3, "servicing_trip": 1},
		OpenRequests:    2,
		MeanSOC:         0.6666,
	}))
	require.NoError(t, influx.RecordRun(coremetrics.RunEvent{
		RunID: "run-1", Scenario: "downtown", Status: coremetrics.RunFinished, Ticks: 1, Time: time.Now(),
	}))

	client := influxdb2.NewClient(url, influxToken)
	defer client.Close()
	res, err := client.QueryAPI(influxOrg).Query(ctx, fmt.Sprintf(
		`from(bucket:"%s") |> range(start: -1h) |> filter(fn: (r) => r.run_id == "run-1")`, influxBucket))
	require.NoError(t, err)
	defer res.Close()

	fields := map[string]any{}
	for res.Next() {
		rec := res.Record()
		fields[rec.Measurement()+"."+rec.Field()+"."+fmt.Sprint(rec.ValueByKey("state"))] = rec.Value()
	}
	require.NoError(t, res.Err())
	assert.EqualValues(t, 2, fields["fleetsim_tick.open_requests.<nil>"])
	assert.InDelta(t, 0.667, fields["fleetsim_tick.mean_soc.<nil>"], 1e-9)
	assert.EqualValues(t, 3, fields["fleetsim_vehicles.count.idle"])
	assert.EqualValues(t, 1, fields["fleetsim_run.ticks.<nil>"])
}
