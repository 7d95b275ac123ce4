package caldav

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nyxcal/icaldav"
)

// newUID synthesises a UID for create_event calls that leave one blank
// (spec §4.4).
func newUID() string {
	return uuid.NewString() + "@icaldav"
}

// sanitizeUID maps uid to a URL-safe path segment (spec §4.4's UID
// sanitisation / §8's UID-safety property): any character outside
// [A-Za-z0-9@._-] becomes '_'. The iCalendar UID itself is never
// altered — only the returned path segment.
func sanitizeUID(uid string) (string, error) {
	if strings.TrimSpace(uid) == "" {
		return "", &icaldav.ValidationError{Message: "uid must not be blank"}
	}
	if strings.Contains(uid, "..") {
		return "", &icaldav.ValidationError{Message: "uid must not contain '..'"}
	}

	var b strings.Builder
	for _, r := range uid {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '@', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sanitized := b.String()
	if strings.Trim(sanitized, ".") == "" {
		return "", &icaldav.ValidationError{Message: "uid collapses to empty after sanitisation"}
	}
	return sanitized, nil
}

// buildEventURL composes the href a new event should be PUT to,
// guaranteeing the §8 UID-safety property: the result contains only
// [A-Za-z0-9@._/-] and no ".." segment.
func buildEventURL(calendarPath, uid string) (string, error) {
	segment, err := sanitizeUID(uid)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(calendarPath, "/")
	return base + "/" + segment + ".ics", nil
}
