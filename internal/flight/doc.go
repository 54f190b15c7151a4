// Package flight contains the synchronization primitives that turn a
// callback-driven platform GATT API into an awaitable request/response API.
//
// The platform delivers results as unsolicited callbacks on threads we do not
// control. Excluder serializes one in-flight correlated operation per resource
// and hands its eventual result (or a timeout) to the task that initiated it.
// Notifier fans a stream of callback values out to any number of subscribers
// with exactly-once activation and deactivation hooks. StreamUntil cuts a
// stream short when a separate event stream signals termination.
//
// Nothing in this package knows what a read, write or RSSI query is; every
// operation is "some call correlated with a later callback".
package flight
