// Package rpcerr classifies the raw error strings returned by Ethereum-family
// JSON-RPC nodes. Node vendors do not expose a structured error code for
// these conditions, so substring matching on the error text is the only
// observable signal (spec §9 design note) — kept here, in one place, so a
// future node-vendor wording change is a one-file fix.
package rpcerr

import "strings"

// Class is the caller-facing classification of a broadcast error: it
// determines what the lifecycle engine does next, not what the node meant.
type Class int

const (
	// ClassOther covers transient RPC errors and anything unrecognized:
	// retry on the next tick, no special state transition beyond
	// resent_times/last_error_msg bookkeeping.
	ClassOther Class = iota
	// ClassNonceTooLow: the broadcast nonce has already been consumed on
	// chain by a different transaction.
	ClassNonceTooLow
	// ClassAlreadyKnown: the node's mempool already has these exact signed
	// bytes; a mandatory gas bump is required to replace it.
	ClassAlreadyKnown
)

var nonceTooLowSubstrings = []string{
	"nonce too low",
	"nonce is too low",
}

var alreadyKnownSubstrings = []string{
	"already known",
	"already exists",
}

// Classify inspects err's message and returns the Class the lifecycle
// engine should act on. A nil error classifies as ClassOther with an empty
// message caller should not reach in practice.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}
	msg := strings.ToLower(err.Error())
	for _, s := range nonceTooLowSubstrings {
		if strings.Contains(msg, s) {
			return ClassNonceTooLow
		}
	}
	for _, s := range alreadyKnownSubstrings {
		if strings.Contains(msg, s) {
			return ClassAlreadyKnown
		}
	}
	return ClassOther
}
