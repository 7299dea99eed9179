// Package service is the lifecycle engine: it owns every mutation of
// groups and requests, computes which actions a user may take, enforces
// the request state machine, and applies transition side effects
// (membership changes, resource attachment, notification).
package service
