package calendar

import "errors"

// Domain errors.
var (
	ErrDuplicateEvent    = errors.New("event id already indexed")
	ErrEventNotFound     = errors.New("event not found")
	ErrInvalidDuration   = errors.New("event duration must be between 1 and 96 quarter ticks")
	ErrInvalidDate       = errors.New("event start is not a valid date")
	ErrInvalidRecurrence = errors.New("invalid recurrence pattern")
	ErrNoParticipants    = errors.New("at least one participant is required")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrInvalidWindow     = errors.New("template end date is before its start date")
)
