package wire

import "errors"

// Error taxonomy surfaced on the wire (spec.md §7). Clients match these
// with errors.Is; the daemon never returns a raw Go error to a peer.
var (
	ErrDaemonNotRunning  = errors.New("velos: daemon is not running")
	ErrConnectionTimeout = errors.New("velos: connection timeout")
	ErrProcessNotFound   = errors.New("velos: process not found")
	ErrProtocol          = errors.New("velos: protocol error")
	ErrSerialize         = errors.New("velos: serialization error")
	ErrBadMagic          = errors.New("velos: bad frame magic")
	ErrBadVersion        = errors.New("velos: unsupported frame version")
)

// ProcessNotFoundError carries the offending name/id alongside the sentinel.
type ProcessNotFoundError struct {
	Ref string
}

func (e *ProcessNotFoundError) Error() string {
	return "velos: process not found: " + e.Ref
}

func (e *ProcessNotFoundError) Unwrap() error { return ErrProcessNotFound }
