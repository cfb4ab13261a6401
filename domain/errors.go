package domain

import "errors"

// ErrInvalidWeek indicates a week/year pair that does not exist in the ISO
// calendar.
var ErrInvalidWeek = errors.New("invalid week")
