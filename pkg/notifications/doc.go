// Package notifications defines the notification sink: the fire-and-forget
// hook the lifecycle engine calls on every externally visible request
// transition. Delivery failures are logged and never surfaced to the
// operation that triggered them.
package notifications
