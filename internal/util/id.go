package util

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApplicationIDLayout is the timestamp part of an application ID.
const ApplicationIDLayout = "20060102-150405"

// NewApplicationID returns an ID of the form YYYYMMDD-HHMMSS-XXXX, where XXXX
// is four upper-case hex characters from a random UUID.
func NewApplicationID() string {
	return newApplicationID(time.Now())
}

func newApplicationID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return now.Format(ApplicationIDLayout) + "-" + strings.ToUpper(suffix)
}
