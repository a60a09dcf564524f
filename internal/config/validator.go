// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial, malformed, or missing configuration.
//
// Beyond the struct tags, one cross-field rule is enforced here: a strict
// CRUD visibility mode with a non-empty deny-list is fine, but a table
// listed in *both* the allow and deny lists is almost certainly an operator
// mistake, so it is rejected at startup instead of silently resolving to
// deny at request time.

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}

	denied := make(map[string]struct{}, len(c.CRUD.DeniedTables))
	for _, t := range c.CRUD.DeniedTables {
		denied[t] = struct{}{}
	}
	for _, t := range c.CRUD.AllowedTables {
		if _, dup := denied[t]; dup {
			return fmt.Errorf("config: table %q appears in both allowed_tables and denied_tables", t)
		}
	}
	return nil
}
