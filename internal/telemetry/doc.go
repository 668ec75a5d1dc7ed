// Package telemetry exports coordination hub snapshots.
//
// Collector exposes every registered API to Prometheus; it holds no state of
// its own and reads a snapshot per scrape. RedisPublisher pushes the same
// snapshot as JSON to a Redis key (with TTL) and pub/sub channel so other
// processes can observe a running hub.
package telemetry
