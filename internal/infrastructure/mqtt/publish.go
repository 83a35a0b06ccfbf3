package mqtt

import "fmt"

// maxPayloadSize bounds one message. Arrays travel through shared memory,
// so bridge responses only carry descriptors.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker's acknowledgement.
// The bridge publishes command responses with it.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS or ErrNotConnected before sending,
//     ErrPublishFailed for oversized payloads and broker failures
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishRetained publishes state the broker keeps for late subscribers,
// such as device health and the lifecycle state, at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
