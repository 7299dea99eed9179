// Package core contains the domain model for the groups service: groups,
// group members and their roles, requests against groups, resources attached
// to groups, and the error types the rest of the system maps to transport
// errors.
package core
