// Package mqtt provides MQTT client connectivity for the emulator.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// MQTT is an optional side channel. Devices are always served on their TCP
// ports; the bridge package uses this client to accept the same commands
// over MQTT and to publish health.
//
// # Topics
//
// Every topic starts with the configured prefix (default "emulator"):
//
//	emulator/command/{label}          commands for one device
//	emulator/response/{label}/{id}    the answer to one command
//	emulator/health/{label}           retained queue and counter snapshot
//	emulator/system/status            retained online/offline and lifecycle state
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
