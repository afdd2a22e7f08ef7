package export

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"glowdesk/internal/models"
)

// SheetsService mirrors confirmed bookings into a shared Google spreadsheet
// so the salon can see the schedule without opening the dashboard. It keeps
// a booking-ID to row cache to update rows in place instead of re-scanning
// the sheet on every sync.
type SheetsService struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	mu       sync.Mutex
	rowCache map[int64]int
}

// NewSheetsService authenticates with a service-account key file and targets
// one spreadsheet.
func NewSheetsService(ctx context.Context, credentialsPath, spreadsheetID, sheetName string, logger zerolog.Logger) (*SheetsService, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return NewSheetsServiceFromAPI(svc, spreadsheetID, sheetName, logger), nil
}

// NewSheetsServiceFromAPI wraps an already-constructed Sheets client.
func NewSheetsServiceFromAPI(svc *sheets.Service, spreadsheetID, sheetName string, logger zerolog.Logger) *SheetsService {
	return &SheetsService{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[int64]int),
	}
}

// filterActiveBookings drops cancelled bookings; the shared sheet only
// shows appointments that still occupy a slot.
func (s *SheetsService) filterActiveBookings(bookings []models.Booking) []models.Booking {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.IsActive() {
			active = append(active, b)
		}
	}
	return active
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.Name,
		b.Email,
		b.Phone,
		b.Date,
		b.Time,
		b.Service,
		b.Status,
	}
}

func (s *SheetsService) getCachedRow(bookingID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

func (s *SheetsService) setCachedRow(bookingID int64, row int) {
	s.mu.Lock()
	s.rowCache[bookingID] = row
	s.mu.Unlock()
}

func (s *SheetsService) deleteCachedRow(bookingID int64) {
	s.mu.Lock()
	delete(s.rowCache, bookingID)
	s.mu.Unlock()
}

// ClearCache drops the row cache, forcing the next sync to rewrite.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	s.rowCache = make(map[int64]int)
	s.mu.Unlock()
}

// SyncBookings rewrites the sheet with the active bookings. Called after a
// calendar refresh; the whole-sheet rewrite keeps ordering consistent with
// the dashboard.
func (s *SheetsService) SyncBookings(ctx context.Context, bookings []models.Booking) error {
	active := s.filterActiveBookings(bookings)

	values := make([][]interface{}, 0, len(active)+1)
	header := []interface{}{"ID", "Client", "Email", "Phone", "Date", "Time", "Service", "Status"}
	values = append(values, header)
	for i := range active {
		values = append(values, bookingRowValues(&active[i]))
	}

	clearRange := s.sheetName + "!A:H"
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	vr := &sheets.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update sheet: %w", err)
	}

	s.ClearCache()
	for i := range active {
		// +2: one for the header, one because sheet rows are 1-based.
		s.setCachedRow(active[i].ID, i+2)
	}

	s.logger.Info().Int("rows", len(active)).Msg("bookings synced to sheet")
	return nil
}

// UpsertBooking updates a single booking's row in place when its position is
// cached, appending otherwise.
func (s *SheetsService) UpsertBooking(ctx context.Context, b *models.Booking) error {
	if !b.IsActive() {
		s.deleteCachedRow(b.ID)
		return nil
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{bookingRowValues(b)}}
	if row, ok := s.getCachedRow(b.ID); ok {
		rng := fmt.Sprintf("%s!A%d", s.sheetName, row)
		_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("update booking row: %w", err)
		}
		return nil
	}

	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:H", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append booking row: %w", err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		var row int
		if _, err := fmt.Sscanf(lastCellRow(resp.Updates.UpdatedRange), "%d", &row); err == nil && row > 0 {
			s.setCachedRow(b.ID, row)
		}
	}
	return nil
}

// lastCellRow extracts the trailing row digits from a range like
// "Bookings!A5:H5".
func lastCellRow(updatedRange string) string {
	i := len(updatedRange)
	for i > 0 && updatedRange[i-1] >= '0' && updatedRange[i-1] <= '9' {
		i--
	}
	return updatedRange[i:]
}
