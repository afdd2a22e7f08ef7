package schedule

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"glowdesk/internal/models"
)

// BookingsToEvents projects bookings into calendar events: start from the
// record's date+time, end from the resolved service duration, color from the
// status. Records missing date, time or service are skipped with a
// diagnostic so one bad booking never blanks the calendar.
func BookingsToEvents(ctx context.Context, bookings []models.Booking, services []models.Service, resolver *DurationResolver, logger *zerolog.Logger) []models.CalendarEvent {
	events := make([]models.CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		if b.Date == "" || b.Time == "" || b.Service == "" {
			if logger != nil {
				logger.Warn().Int64("booking_id", b.ID).Msg("booking missing required fields, skipping event")
			}
			continue
		}

		start, ok := b.StartsAt()
		if !ok {
			if logger != nil {
				logger.Warn().Int64("booking_id", b.ID).Str("time", b.Time).Msg("unparsable booking start, skipping event")
			}
			continue
		}

		minutes := DefaultDurationMinutes
		if resolver != nil {
			minutes = resolver.Resolve(ctx, b.Service, services, false)
		}

		end, ok := ComputeEndTime(b.Date, b.Time, minutes)
		if !ok {
			// End-time computation failed even though the start parsed;
			// render a default one-hour block instead of dropping the event.
			end = start.Add(time.Duration(DefaultDurationMinutes) * time.Minute)
			minutes = DefaultDurationMinutes
		}

		events = append(events, models.CalendarEvent{
			ID:       strconv.FormatInt(b.ID, 10),
			Title:    b.Name + " - " + b.Service,
			Start:    start,
			End:      end,
			Color:    models.StatusColor(b.Status),
			Name:     b.Name,
			Email:    b.Email,
			Phone:    b.Phone,
			Service:  b.Service,
			Status:   b.Status,
			Duration: minutes,
		})
	}
	return events
}
