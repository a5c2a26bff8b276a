package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter extracts the server-requested wait from a Retry-After
// header. The value is either delta-seconds or an HTTP-date in one of the
// three formats RFC 7231 permits (IMF-fixdate, RFC 850, ANSI C asctime);
// http.ParseTime tries exactly those. Returns false when the header is
// absent or unparseable. Dates in the past and negative deltas clamp to zero.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}

	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := t.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}
