// Package authority defines the resource authority capability: the
// external services that are the source of truth for administrator rights
// over each resource type, plus the registry that binds resource types to
// handlers at startup.
package authority
