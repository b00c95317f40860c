// Package environment names the deployment environment the service runs in.
package environment

import "strings"

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse maps APP_ENV style values, including the short forms "dev", "stage"
// and "prod", to an Environment. Anything unrecognized is Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

func (e Environment) String() string { return string(e) }

// IsProduction reports whether e is a production-like deployment, where logs
// are JSON and debug output is off.
func (e Environment) IsProduction() bool {
	return e == Production || e == Staging
}
