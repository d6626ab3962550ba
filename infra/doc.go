// Package infra holds the adapters of the bridge: the sqlite order store,
// Prometheus and InfluxDB metrics sinks, the MQTT status publisher, Sentry
// monitoring and the zerolog logger. Core packages only see their interfaces.
package infra
