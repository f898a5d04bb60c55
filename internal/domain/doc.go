// Package domain defines core data models, contracts and the error taxonomy
// shared across the app. It contains plain types (wire/state) and interfaces
// only; types and interfaces live in subpackages and are re-exported here.
package domain
