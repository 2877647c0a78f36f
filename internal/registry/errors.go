package registry

import "errors"

// ErrInvalidSchedule is wrapped by Register when the cron expression does
// not parse. Bad schedules fail fast at registration time.
var ErrInvalidSchedule = errors.New("invalid schedule expression")
