// Package telemetry samples dispatch counters into InfluxDB.
//
// Every sample interval the Reporter writes one device_stats point per
// device and one shared_memory point for the payload broker. Only
// aggregates are written; individual commands are never recorded.
package telemetry
