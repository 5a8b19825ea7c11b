// Package scope holds the scope registry consumed during consent rendering
// and recording.
package scope

// Scope describes a registered scope. IsDisplayedInConsent controls whether
// the consent screen shows it to the resource owner.
type Scope struct {
	Name                 string
	Description          string
	IsDisplayedInConsent bool
}
