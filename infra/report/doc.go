// Package report holds the report handlers that write simulation reports
// outside the process: rotating JSONL files, SQLite, MQTT, Kafka and a Redis
// snapshot of the latest state. Handlers register themselves with the core
// report registry under the names jsonl, sqlite, mqtt, kafka, redis and stats.
package report
