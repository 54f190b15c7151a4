// Package device exposes GATT resource handles (Device, Service,
// Characteristic, Descriptor) on top of a callback-driven platform backend.
//
// Handles are cheap values identified by a device id and a UUID path. They
// hold no platform resources themselves: each operation resolves its handle
// through the shared resource tree, issues the backend call, then awaits the
// correlated completion delivered by the platform adapter through the Stack's
// event surface. Disconnects and GATT database changes surface as typed,
// recoverable errors rather than hangs or crashes.
package device
