/*
Package port defines the contract between the invocation bridge and an
event-driven engine: an inbound port accepting values and an outbound port
broadcasting emissions to attached listeners.
*/
package port
