// Package txerr classifies errors surfaced by RPC, aggregator, and venue
// calls into the kinds the Executor and Watcher branch their retry and
// propagation policy on.
package txerr

import "strings"

// Kind is one of the error classes the pipeline reacts to.
type Kind string

const (
	Transient Kind = "Transient"
	RateLimit Kind = "RateLimit"
	NoRoute   Kind = "NoRoute"
	NoBalance Kind = "NoBalance"
	Config    Kind = "Config"
	Fatal     Kind = "Fatal"
)

// Error wraps an underlying error with its classified Kind.
type Error struct {
	Kind Kind
	Raw  error
}

func (e *Error) Error() string {
	if e.Raw == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Raw.Error()
}

func (e *Error) Unwrap() error { return e.Raw }

// New wraps err with the given Kind. Returns nil if err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Raw: err}
}

// Classify inspects err's text and returns the best-guess Kind, mirroring
// the pattern-matched translation the RPC layer historically did inline.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *Error
	if asErr(err, &ke) {
		return ke.Kind
	}

	raw := strings.ToLower(err.Error())
	switch {
	case has(raw, "no record of a prior credit"),
		has(raw, "insufficient funds"),
		has(raw, "insufficient lamports"),
		has(raw, "account not found"),
		has(raw, "accountnotfound"):
		return NoBalance

	case has(raw, "429"),
		has(raw, "rate limit"),
		has(raw, "too many requests"):
		return RateLimit

	case has(raw, "no route"),
		has(raw, "no routes found"),
		has(raw, "could not find any route"):
		return NoRoute

	case has(raw, "slippage"),
		has(raw, "exceededslippage"),
		has(raw, "blockhash not found"),
		has(raw, "block height exceeded"),
		has(raw, "compute budget exceeded"),
		has(raw, "connection refused"),
		has(raw, "timeout"),
		has(raw, "timed out"),
		has(raw, "simulation failed"),
		has(raw, "custom program error"),
		has(raw, "0x1"):
		return Transient

	case has(raw, "missing") && has(raw, "key"),
		has(raw, "invalid private key"),
		has(raw, "invalid signer"):
		return Config

	case has(raw, "bind:"),
		has(raw, "address already in use"):
		return Fatal

	default:
		return Transient
	}
}

// Is reports whether err classifies to kind.
func Is(err error, kind Kind) bool {
	return Classify(err) == kind
}

func has(s, substr string) bool { return strings.Contains(s, substr) }

// asErr is a small helper so Classify can unwrap *Error without importing
// the errors package's As generically (keeps this file dependency-free).
func asErr(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return asErr(u.Unwrap(), target)
	}
	return false
}

// HumanMessage returns a short operator-facing description of err's kind,
// in the emoji-tagged style the RPC layer historically logged.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case NoBalance:
		return "❌ insufficient balance"
	case RateLimit:
		return "⚠️ rate limited"
	case NoRoute:
		return "❌ no route across any tier"
	case Config:
		return "❌ configuration error"
	case Fatal:
		return "❌ fatal startup error"
	default:
		return "⚠️ transient error: " + err.Error()
	}
}
