package report

import (
	"context"
	"time"

	"github.com/kilianp07/fleetsim/core/factory"
	corereport "github.com/kilianp07/fleetsim/core/report"
)

// init registers built-in report handlers.
func init() {
	_ = corereport.RegisterHandler("jsonl", func(conf map[string]any) (corereport.Handler, error) {
		var c JSONLConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLHandler(c)
	})

	_ = corereport.RegisterHandler("sqlite", func(conf map[string]any) (corereport.Handler, error) {
		c := struct {
			Path string `json:"path"`
		}{Path: "reports/reports.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteHandler(c.Path)
	})

	_ = corereport.RegisterHandler("mqtt", func(conf map[string]any) (corereport.Handler, error) {
		var c MQTTConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMQTTHandler(c)
	})

	_ = corereport.RegisterHandler("kafka", func(conf map[string]any) (corereport.Handler, error) {
		var c KafkaConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewKafkaHandler(c)
	})

	_ = corereport.RegisterHandler("redis", func(conf map[string]any) (corereport.Handler, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return NewRedisHandler(ctx, c)
	})

	_ = corereport.RegisterHandler("stats", func(conf map[string]any) (corereport.Handler, error) {
		c := struct {
			TimestepSeconds int64 `json:"timestep_seconds"`
		}{TimestepSeconds: 60}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return corereport.NewStatsHandler(c.TimestepSeconds), nil
	})
}
