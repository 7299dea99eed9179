// Package storage defines the persistence contract for groups and requests.
//
// # Overview
//
// The GroupsStorage interface is the single abstraction the lifecycle engine
// writes through. It is split into GroupStore and RequestStore so tests can
// mock only the half they exercise. The PostgreSQL implementation lives in
// the postgres subpackage; an optional Redis-backed read cache wraps it.
//
// # Concurrency contract
//
// CloseRequest is a compare-and-swap on the request's status: the update
// applies only if the request is still open at write time, and a lost race
// surfaces as core.ClosedRequestError. No other locking is provided or
// needed; each mutation touches a single group or a single request.
//
// # Listing semantics
//
// Every listing method returns at most MaxList rows. Pagination uses an
// exclusive cursor (ExcludeUpTo) on the sort key, strictly-after for
// ascending listings and strictly-before for descending ones, so successive
// pages are disjoint and gap-free.
package storage
