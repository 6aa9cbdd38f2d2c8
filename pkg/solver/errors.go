// Package solver implements the draft-polling, admission-control, signing,
// and fulfillment state machine described in §4.7.
package solver

import "errors"

// ErrInsufficientLiquidity is the solver-local admission-control rejection
// (§4.7.1a, §7: "InsufficientLiquidity ... causes draft abandonment; no API
// exposure").
var ErrInsufficientLiquidity = errors.New("solver: insufficient liquidity")
