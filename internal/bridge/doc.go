// Package bridge exposes emulated devices over MQTT.
//
// The Bridge subscribes to {prefix}/command/+ and submits each command to
// the named device's registration, exactly as a socket client would. The
// answer is published on {prefix}/response/{label}/{id}. Commands run on
// their own goroutines, so a slow acquisition on one device never delays
// another device's commands.
//
// The HealthReporter publishes a retained snapshot of each device's queue
// and counters on {prefix}/health/{label}, and the bridge publishes the
// process lifecycle state on {prefix}/system/status.
//
// # Message Formats
//
// Command:
//
//	{"id": "req-1", "operation": "move_to", "args": [100, 200]}
//
// Response:
//
//	{"id": "req-1", "device": "microscope", "status": 200, "payload": null, ...}
//
// The id is optional; a UUID is assigned when it is missing.
package bridge
