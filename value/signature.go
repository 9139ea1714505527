package value

import (
	"github.com/c360/bridgekit/errors"
)

// Param describes one positional parameter of a capability method.
type Param struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// P builds a required parameter.
func P(name string, t Type) Param {
	return Param{Name: name, Type: t}
}

// Opt builds an optional trailing parameter.
func Opt(name string, t Type) Param {
	return Param{Name: name, Type: t, Optional: true}
}

// Signature declares the positional parameters and result type of a
// capability method. Validation dispatches on type tags; there is no
// reflection anywhere on the call path.
type Signature struct {
	Params []Param `json:"params,omitempty"`
	Result Type    `json:"result"`
}

// Arity returns the minimum and maximum accepted argument counts.
func (s Signature) Arity() (min, max int) {
	max = len(s.Params)
	min = max
	for i := len(s.Params) - 1; i >= 0; i-- {
		if !s.Params[i].Optional {
			break
		}
		min--
	}
	return min, max
}

// Validate checks that the signature is well formed: optional parameters
// must be trailing.
func (s Signature) Validate() error {
	seenOptional := false
	for _, p := range s.Params {
		if p.Optional {
			seenOptional = true
			continue
		}
		if seenOptional {
			return errors.Newf(errors.KindTypeMismatch, "Signature", "Validate",
				"required parameter %q follows an optional parameter", p.Name)
		}
	}
	return nil
}

// Check validates argument arity and types against the signature. The module
// and method names scope the error message to the failing call site.
func (s Signature) Check(module, method string, args []Value) error {
	min, max := s.Arity()
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.Newf(errors.KindTypeMismatch, module, method,
				"expected %d argument(s), got %d", max, len(args))
		}
		return errors.Newf(errors.KindTypeMismatch, module, method,
			"expected %d to %d arguments, got %d", min, max, len(args))
	}

	for i, arg := range args {
		expected := s.Params[i].Type
		if expected == TypeAny {
			continue
		}
		if arg.Type() != expected {
			return errors.Newf(errors.KindTypeMismatch, module, method,
				"argument %d (%s): expected %s, got %s",
				i+1, s.Params[i].Name, expected, arg.Type())
		}
	}
	return nil
}
