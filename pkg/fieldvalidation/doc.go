// Package fieldvalidation validates custom group and member metadata
// fields. Validators are pluggable per field key and bound at startup from
// a YAML configuration file.
package fieldvalidation
