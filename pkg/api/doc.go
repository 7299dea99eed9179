// Package api exposes the groups service over HTTP.
//
// # Overview
//
// The server translates HTTP requests into service calls: it authenticates
// the caller against the identity authority, parses path and query
// parameters into domain types, and maps domain errors onto HTTP status
// codes. All business rules live in pkg/service; handlers here never touch
// storage or authorities directly.
//
// # Authentication
//
// Callers present their token in the Authorization header. Most endpoints
// require a token; group listing and retrieval accept anonymous callers and
// show only what an anonymous viewer may see.
//
// # Error Mapping
//
//	400  missing or malformed parameters, field validation failures
//	401  missing, invalid or expired token
//	403  caller lacks the required role
//	404  unknown group, request, member or resource
//	409  duplicate group or request, already a member, closed request
//	502  a resource authority was unreachable
//
// # Related Packages
//
//   - pkg/service: Business logic behind every handler
//   - pkg/identity: Token validation
//   - pkg/httputil: JSON response helpers
package api
