package catalog

import "fmt"

// ResolveLanding returns the landing post, which sits one position before
// BasePosition. Registrations made by the publishing flow rely on this.
func ResolveLanding(e Entry) (Target, error) {
	pos := e.BasePosition - 1
	if pos < 0 {
		return Target{}, fmt.Errorf("%w: landing of %q at %d", ErrOutOfRange, e.Code, pos)
	}
	return Target{Channel: e.Channel, Position: pos}, nil
}

// ResolvePart returns part k (1-based). k outside 1..PartCount is never clamped.
func ResolvePart(e Entry, k int) (Target, error) {
	if k < 1 || k > e.PartCount {
		return Target{}, fmt.Errorf("%w: part %d of %q (have %d)", ErrOutOfRange, k, e.Code, e.PartCount)
	}
	return Target{Channel: e.Channel, Position: e.BasePosition + k - 1}, nil
}
