// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree and applies defaults.  Any validation
// error aborts startup, so the binary never runs with a malformed cache or
// template configuration.
//
// Field rules live in the struct tags of model.go.  Rules that relate two
// fields are registered here as struct-level validations.
//
// Notes
// -----
//   • Two spaces after periods.

package config

import "github.com/go-playground/validator/v10"

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterStructValidation(validateCache, Cache{})
	return val
}

// validateCache rejects a headroom that would leave no room at all under a
// finite capacity.
func validateCache(sl validator.StructLevel) {
	c := sl.Current().Interface().(Cache)
	if c.Capacity > 0 && c.Headroom >= c.Capacity {
		sl.ReportError(c.Headroom, "Headroom", "headroom", "ltcapacity", "")
	}
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
