// Package mhrwutil collects the small, spec-named utilities the rest
// of the engine shares: deterministic duration formatting and a
// bounded moving-average buffer (the "static-or-dynamic dimension"
// pattern is deliberately not implemented here — it is a compile-time
// micro-optimisation the Go port replaces with a plain runtime value,
// per spec.md §9's own redesign note).
package mhrwutil

import (
	"fmt"
	"time"
)

// FormatDuration renders d as "H:MM:SS.sss" once it reaches an hour,
// "M:SS.sss" once it reaches a minute, and "S.sss" seconds otherwise,
// per spec.md §6.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int64(d / time.Hour)
	if hours >= 1 {
		rem := d - time.Duration(hours)*time.Hour
		minutes := int64(rem / time.Minute)
		rem -= time.Duration(minutes) * time.Minute

		return fmt.Sprintf("%d:%02d:%06.3f", hours, minutes, rem.Seconds())
	}

	minutes := int64(d / time.Minute)
	if minutes >= 1 {
		rem := d - time.Duration(minutes)*time.Minute

		return fmt.Sprintf("%d:%06.3f", minutes, rem.Seconds())
	}

	return fmt.Sprintf("%.3f", d.Seconds())
}
