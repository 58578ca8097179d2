package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/fleetsim/core/model"
	corereport "github.com/kilianp07/fleetsim/core/report"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// RedisConfig selects the server and key namespace of the snapshot handler.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	// TTLSeconds expires the keys of a run that stopped updating; zero keeps them.
	TTLSeconds int `json:"ttl_seconds"`
}

// SetDefaults fills zero values.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "fleetsim"
	}
}

// VehicleSnapshot is the latest known state of a vehicle.
type VehicleSnapshot struct {
	ID         string       `json:"id"`
	State      string       `json:"state"`
	GeoID      string       `json:"geoid"`
	Lat        float64      `json:"lat"`
	Lon        float64      `json:"lon"`
	Energy     model.Energy `json:"energy"`
	Passengers int          `json:"passengers"`
	Balance    float64      `json:"balance"`
}

// StationSnapshot is the latest known state of a station.
type StationSnapshot struct {
	ID       string                        `json:"id"`
	GeoID    string                        `json:"geoid"`
	Balance  float64                       `json:"balance"`
	Chargers map[string]model.ChargerState `json:"chargers"`
}

// RedisHandler keeps the latest vehicle and station state of each run in
// Redis hashes, for dashboards polling a live run. Report batches only
// update the run's clock.
type RedisHandler struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHandler pings the server before returning.
func NewRedisHandler(ctx context.Context, cfg RedisConfig) (*RedisHandler, error) {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return &RedisHandler{client: client, prefix: cfg.KeyPrefix, ttl: time.Duration(cfg.TTLSeconds) * time.Second}, nil
}

func (h *RedisHandler) runsKey() string { return h.prefix + ":runs" }

func (h *RedisHandler) key(runID, what string) string {
	return fmt.Sprintf("%s:run:%s:%s", h.prefix, runID, what)
}

func (h *RedisHandler) Handle(ctx context.Context, b corereport.Batch) error {
	pipe := h.client.Pipeline()
	pipe.Set(ctx, h.key(b.RunID, "sim_time"), b.SimTime, h.ttl)
	pipe.SAdd(ctx, h.runsKey(), b.RunID)
	_, err := pipe.Exec(ctx)
	return err
}

// HandleState replaces the run's vehicle and station hashes with sim.
func (h *RedisHandler) HandleState(ctx context.Context, runID string, sim *simstate.SimulationState) error {
	vehicles, err := vehicleSnapshots(sim)
	if err != nil {
		return err
	}
	stations, err := stationSnapshots(sim)
	if err != nil {
		return err
	}
	vk, sk := h.key(runID, "vehicles"), h.key(runID, "stations")
	pipe := h.client.TxPipeline()
	pipe.Del(ctx, vk, sk)
	if len(vehicles) > 0 {
		pipe.HSet(ctx, vk, vehicles)
	}
	if len(stations) > 0 {
		pipe.HSet(ctx, sk, stations)
	}
	if h.ttl > 0 {
		pipe.Expire(ctx, vk, h.ttl)
		pipe.Expire(ctx, sk, h.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Vehicles reads back the latest vehicle snapshots of a run.
func (h *RedisHandler) Vehicles(ctx context.Context, runID string) (map[string]VehicleSnapshot, error) {
	raw, err := h.client.HGetAll(ctx, h.key(runID, "vehicles")).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]VehicleSnapshot, len(raw))
	for id, data := range raw {
		var v VehicleSnapshot
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("vehicle %s: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

// SimTime returns the last tick flushed for a run; ok is false when the run
// is unknown.
func (h *RedisHandler) SimTime(ctx context.Context, runID string) (t int64, ok bool, err error) {
	t, err = h.client.Get(ctx, h.key(runID, "sim_time")).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return t, true, nil
}

func (h *RedisHandler) Close() error { return h.client.Close() }

func vehicleSnapshots(sim *simstate.SimulationState) (map[string]any, error) {
	out := make(map[string]any, len(sim.VehicleIDs()))
	for _, v := range sim.Vehicles() {
		lat, lon := v.GeoID().LatLng()
		b, err := json.Marshal(VehicleSnapshot{
			ID:         v.ID,
			State:      v.State.Kind().String(),
			GeoID:      v.GeoID().String(),
			Lat:        lat,
			Lon:        lon,
			Energy:     v.Energy,
			Passengers: len(v.Passengers),
			Balance:    v.Balance,
		})
		if err != nil {
			return nil, err
		}
		out[v.ID] = string(b)
	}
	return out, nil
}

func stationSnapshots(sim *simstate.SimulationState) (map[string]any, error) {
	out := make(map[string]any)
	for _, st := range sim.Stations() {
		b, err := json.Marshal(StationSnapshot{
			ID:       st.ID,
			GeoID:    st.GeoID().String(),
			Balance:  st.Balance,
			Chargers: st.Chargers,
		})
		if err != nil {
			return nil, err
		}
		out[st.ID] = string(b)
	}
	return out, nil
}
