package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the emulator.
const (
	MeasurementDeviceStats  = "device_stats"
	MeasurementSharedMemory = "shared_memory"
)

// WriteDeviceStats writes one sample of a device's dispatch counters.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - label: Device label, stored as the "device" tag
//   - fields: Counter values (e.g., "commands_total", "queue_depth")
//   - at: Sample time
//
// Example:
//
//	client.WriteDeviceStats("camera", map[string]any{"queue_depth": 3}, time.Now())
func (c *Client) WriteDeviceStats(label string, fields map[string]any, at time.Time) {
	c.writePoint(MeasurementDeviceStats, map[string]string{"device": label}, fields, at)
}

// WriteSharedMemoryStats writes one sample of the payload broker state.
func (c *Client) WriteSharedMemoryStats(identifier string, sizeBytes, allocations int, at time.Time) {
	c.writePoint(MeasurementSharedMemory,
		map[string]string{"identifier": identifier},
		map[string]any{
			"size_bytes":  sizeBytes,
			"allocations": allocations,
		},
		at,
	)
}

// writePoint queues one point. Empty samples and writes after Close are
// dropped.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
