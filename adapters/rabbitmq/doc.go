/*
Package rabbitmq provides a RabbitMQ-backed engine for the bridge.
Inputs are published to a topic exchange; outputs are consumed from an exclusive
queue bound to the output routing key. The connection auto-reconnects and
re-consumes, and header propagation is supported via a port.HeaderPropagator.
*/
package rabbitmq
