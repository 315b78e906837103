package fee

import (
	"math"
	"math/bits"
	"time"

	"github.com/xraph/escrow/types"
)

// Schedule describes when the cycles of an accepted invoice fall due.
type Schedule struct {
	// Days is the cycle length in days.
	Days uint64
	// Cycles is the number of withdrawal cycles.
	Cycles uint64
	// Unit is the length of one "day". Production uses 24h.
	Unit time.Duration
}

// Validate rejects empty schedules and schedules whose last due time cannot
// be represented.
func (s Schedule) Validate() error {
	if s.Days == 0 || s.Cycles == 0 || s.Unit <= 0 {
		return ErrInvalidSchedule
	}
	_, err := s.offset(s.Cycles)
	return err
}

// Period returns the length of a single cycle.
func (s Schedule) Period() (time.Duration, error) {
	if s.Days == 0 || s.Unit <= 0 {
		return 0, ErrInvalidSchedule
	}
	return mulDuration(s.Days, uint64(s.Unit))
}

// DueAt returns the earliest time cycle (zero-based) may be withdrawn.
// The first cycle falls due one full period after acceptance.
func (s Schedule) DueAt(acceptedAt time.Time, cycle uint64) (time.Time, error) {
	if s.Cycles == 0 || cycle >= s.Cycles {
		return time.Time{}, ErrInvalidSchedule
	}
	off, err := s.offset(cycle + 1)
	if err != nil {
		return time.Time{}, err
	}
	return acceptedAt.Add(off), nil
}

// offset returns n periods as a duration.
func (s Schedule) offset(n uint64) (time.Duration, error) {
	period, err := s.Period()
	if err != nil {
		return 0, err
	}
	return mulDuration(n, uint64(period))
}

func mulDuration(a, b uint64) (time.Duration, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 || lo > math.MaxInt64 {
		return 0, types.ErrOverflow
	}
	return time.Duration(lo), nil
}
