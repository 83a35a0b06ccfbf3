package mqtt

import "errors"

// Errors returned by the client; check with errors.Is.
var (
	// ErrNotConnected means the broker connection is down. Publishes are
	// not queued while disconnected.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed means Connect could not reach the broker.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps a rejected or timed-out publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a rejected or timed-out subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a rejected or timed-out unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS means a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic means an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
