package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/model"
	corereport "github.com/kilianp07/fleetsim/core/report"
)

func batch(runID string, at int64, types ...corereport.Type) corereport.Batch {
	b := corereport.Batch{RunID: runID, SimTime: at}
	for i, t := range types {
		b.Reports = append(b.Reports, corereport.New(t, model.SimTime(at), map[string]any{
			"vehicle_id": fmt.Sprintf("v%d", i),
		}))
	}
	return b
}

func TestRecordJSON(t *testing.T) {
	rec := Record{RunID: "r1", Report: corereport.New(corereport.Instruction, 60, map[string]any{"vehicle_id": "v1"})}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "r1", flat["run_id"])
	assert.Equal(t, "instruction", flat["report_type"])

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "r1", back.RunID)
	assert.Equal(t, corereport.Instruction, back.Type)
	assert.Equal(t, "v1", back.Str("vehicle_id"))
	_, leaked := back.Data["run_id"]
	assert.False(t, leaked)
}

func TestJSONLHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reports.jsonl")
	h, err := NewJSONLHandler(JSONLConfig{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, batch("a", 60, corereport.Instruction, corereport.VehicleMoveEvent)))
	require.NoError(t, h.Handle(ctx, batch("b", 60, corereport.Instruction)))
	require.NoError(t, h.Handle(ctx, batch("a", 120, corereport.Instruction)))

	all, err := h.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	runA, err := h.Query(ctx, Query{RunID: "a", Types: []corereport.Type{corereport.Instruction}})
	require.NoError(t, err)
	require.Len(t, runA, 2)
	assert.Equal(t, model.SimTime(60), runA[0].SimTime)

	late, err := h.Query(ctx, Query{From: 100})
	require.NoError(t, err)
	assert.Len(t, late, 1)
}

func TestSQLiteHandler(t *testing.T) {
	h, err := NewSQLiteHandler(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, batch("a", 60, corereport.Instruction, corereport.VehicleMoveEvent)))
	require.NoError(t, h.Handle(ctx, batch("b", 120, corereport.Instruction)))
	require.NoError(t, h.Handle(ctx, corereport.Batch{RunID: "a", SimTime: 180}))

	recs, err := h.Query(ctx, Query{RunID: "a"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, corereport.Instruction, recs[0].Type)
	assert.Equal(t, "v1", recs[1].Str("vehicle_id"))

	recs, err = h.Query(ctx, Query{Types: []corereport.Type{corereport.Instruction, corereport.Error}, To: 60})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	counts, err := h.Counts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[corereport.Type]int{corereport.Instruction: 1, corereport.VehicleMoveEvent: 1}, counts)
}

func TestSQLiteHandlerConcurrentRuns(t *testing.T) {
	h, err := NewSQLiteHandler(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	const runs, ticks = 4, 50
	ctx := context.Background()
	errs := make(chan error, runs*ticks)
	var wg sync.WaitGroup
	for r := 0; r < runs; r++ {
		wg.Add(1)
		go func(runID string) {
			defer wg.Done()
			for i := 0; i < ticks; i++ {
				if err := h.Handle(ctx, batch(runID, int64(i*60), corereport.Instruction)); err != nil {
					errs <- err
				}
			}
		}(fmt.Sprintf("run-%d", r))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("handle: %v", err)
	}

	for r := 0; r < runs; r++ {
		counts, err := h.Counts(ctx, fmt.Sprintf("run-%d", r))
		require.NoError(t, err)
		assert.Equal(t, ticks, counts[corereport.Instruction])
	}
}

type published struct {
	topic   string
	payload []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
	disconnects int
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnects++ }
func (m *mockClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	m.published = append(m.published, published{topic, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

func withMockMQTT(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func TestMQTTHandlerPublishesPerReport(t *testing.T) {
	mc := &mockClient{}
	withMockMQTT(t, mc)
	h, err := NewMQTTHandler(MQTTConfig{Broker: "tcp://localhost:1883", TopicPrefix: "sim"})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), batch("r1", 60, corereport.Instruction, corereport.VehicleChargeEvent)))
	require.Len(t, mc.published, 2)
	assert.Equal(t, "sim/r1/instruction", mc.published[0].topic)
	assert.Equal(t, "sim/r1/vehicle_charge_event", mc.published[1].topic)
	var rec Record
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &rec))
	assert.Equal(t, "r1", rec.RunID)

	require.NoError(t, h.Close())
	assert.Equal(t, 1, mc.disconnects)
}

func TestMQTTHandlerRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMockMQTT(t, mc)
	h, err := NewMQTTHandler(MQTTConfig{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), batch("r1", 60, corereport.Instruction)))
	assert.Len(t, mc.published, 2)
}

func TestMQTTHandlerGivesUp(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	withMockMQTT(t, mc)
	h, err := NewMQTTHandler(MQTTConfig{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	err = h.Handle(context.Background(), batch("r1", 60, corereport.Instruction, corereport.Instruction))
	require.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 2, "second report is not attempted")
}

func TestMQTTConfigValidate(t *testing.T) {
	_, err := NewMQTTHandler(MQTTConfig{})
	require.Error(t, err)
	_, err = NewMQTTHandler(MQTTConfig{Broker: "tcp://x:1883", QoS: 3})
	require.Error(t, err)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func withFakeKafka(t *testing.T, fw *fakeWriter) *[]string {
	t.Helper()
	var brokers []string
	newKafkaWriter = func(b []string) kafkaWriter { brokers = b; return fw }
	t.Cleanup(func() {
		newKafkaWriter = func(b []string) kafkaWriter {
			return &kafka.Writer{Addr: kafka.TCP(b...), Balancer: &kafka.LeastBytes{}}
		}
	})
	return &brokers
}

func TestKafkaHandler(t *testing.T) {
	fw := &fakeWriter{}
	brokers := withFakeKafka(t, fw)
	h, err := NewKafkaHandler(KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, *brokers)

	require.NoError(t, h.Handle(context.Background(), corereport.Batch{RunID: "r1"}))
	assert.Empty(t, fw.msgs)

	require.NoError(t, h.Handle(context.Background(), batch("r1", 60, corereport.Instruction, corereport.Error)))
	require.Len(t, fw.msgs, 2)
	m := fw.msgs[1]
	assert.Equal(t, "fleetsim.reports", m.Topic)
	assert.Equal(t, "r1", string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "error", string(m.Headers[0].Value))

	require.NoError(t, h.Close())
	assert.True(t, fw.closed)
}

func TestKafkaHandlerWrapsWriteError(t *testing.T) {
	boom := fmt.Errorf("broker down")
	withFakeKafka(t, &fakeWriter{err: boom})
	h, err := NewKafkaHandler(KafkaConfig{Brokers: []string{"k1:9092"}, Topic: "t"})
	require.NoError(t, err)
	err = h.Handle(context.Background(), batch("r1", 60, corereport.Instruction))
	require.ErrorIs(t, err, boom)

	_, err = NewKafkaHandler(KafkaConfig{})
	require.Error(t, err)
}

func TestRegisteredHandlers(t *testing.T) {
	dir := t.TempDir()
	fw := &fakeWriter{}
	withFakeKafka(t, fw)
	hs, err := corereport.NewHandlers([]factory.ModuleConfig{
		{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "r.jsonl")}},
		{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "r.db")}},
		{Type: "kafka", Conf: map[string]any{"brokers": []any{"k1:9092"}}},
		{Type: "stats"},
	})
	require.NoError(t, err)
	require.Len(t, hs, 4)
	assert.IsType(t, &JSONLHandler{}, hs[0])
	assert.IsType(t, &SQLiteHandler{}, hs[1])
	assert.IsType(t, &KafkaHandler{}, hs[2])
	assert.IsType(t, &corereport.StatsHandler{}, hs[3])
	for _, h := range hs {
		require.NoError(t, h.Close())
	}

	_, err = corereport.NewHandlers([]factory.ModuleConfig{{Type: "carrier_pigeon"}})
	require.Error(t, err)
}
