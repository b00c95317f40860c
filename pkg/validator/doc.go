// Package validator checks input with small composable rules.
//
//	err := validator.Apply(
//		validator.RequiredString("name", in.Name),
//		validator.MaxLenString("name", in.Name, 200),
//		validator.HTTPURL("baseUrl", in.BaseURL),
//	)
//
// The returned ValidationErrors satisfies errors.Is(err, ErrValidationFailed)
// and exposes Details for response bodies.
package validator
