// Package fanout provides the outbound broadcaster shared by every engine adapter.
package fanout
