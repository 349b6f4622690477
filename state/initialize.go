package state

import (
	"os"
	"strconv"
	"time"
)

// sourceDateEpoch is honored for reproducible builds, see
// https://reproducible-builds.org/specs/source-date-epoch/
const sourceDateEpoch = "SOURCE_DATE_EPOCH"

func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
		Clock: clockFromEnv(os.Getenv(sourceDateEpoch)),
	}
}

func clockFromEnv(epoch string) func() time.Time {
	if sec, err := strconv.ParseInt(epoch, 10, 64); err == nil && sec >= 0 {
		fixed := time.Unix(sec, 0).UTC()
		return func() time.Time { return fixed }
	}
	return time.Now
}
