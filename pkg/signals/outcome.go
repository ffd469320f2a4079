// Package signals holds the extractor outcome type shared by the five
// signal extractors in its subpackages.
package signals

import "fmt"

// Extractor identifiers. They appear in warnings, logs and metrics.
const (
	Structure = "structure"
	DomainAge = "domain_age"
	TLS       = "tls"
	Blacklist = "blacklist"
	Redirect  = "redirect"
)

// Outcome is the tagged result of one extractor. A degraded outcome still
// carries a usable Value; the assembler substitutes defaults for the fields
// it cannot trust.
type Outcome[T any] struct {
	Extractor string
	Value     T
	Degraded  bool
	Reason    string
}

func OK[T any](extractor string, value T) Outcome[T] {
	return Outcome[T]{Extractor: extractor, Value: value}
}

func Degraded[T any](extractor string, value T, format string, args ...interface{}) Outcome[T] {
	return Outcome[T]{
		Extractor: extractor,
		Value:     value,
		Degraded:  true,
		Reason:    fmt.Sprintf(format, args...),
	}
}
