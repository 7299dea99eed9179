// Package identity defines the identity authority capability: token
// validation and user existence checks. The service never validates
// credentials itself; it delegates to an external authority over HTTP.
package identity
