/*
Package bridge turns a one-shot "input to output" call into a pair of port events
on an event-driven engine. Each invocation attaches a single-use listener to the
engine's outbound port, sends its input on the inbound port, and resolves exactly
once when a matching emission arrives, after which the listener is detached.
*/
package bridge
