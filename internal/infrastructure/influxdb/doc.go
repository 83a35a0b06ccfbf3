// Package influxdb provides InfluxDB connectivity for emulator telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. The telemetry
// package samples device counters and writes them through this client.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceStats("camera", map[string]any{
//	    "commands_total": 120,
//	    "queue_depth":    0,
//	}, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered to the callback
// set with SetOnError. Connection and health check errors are returned
// directly.
package influxdb
