package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
)

// ExportFormat names a supported download format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type timetableReader interface {
	Get(ctx context.Context, id string) (*models.Timetable, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportService renders a timetable as a weekly grid.
type ExportService struct {
	timetables timetableReader
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(timetables timetableReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{timetables: timetables, csv: csv, pdf: pdf, logger: logger}
}

var exportHeaders = []string{"Day", "Slot", "Time", "Activity", "Title", "Venue", "Faculty", "Trainer", "Status"}

// Export renders the timetable in the requested format.
func (s *ExportService) Export(ctx context.Context, id string, format ExportFormat) (*ExportFile, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	timetable, err := s.timetables.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := buildWeeklyGrid(timetable)
	base := exportFilename(timetable)
	var file ExportFile
	switch format {
	case ExportFormatCSV:
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = ExportFile{Filename: base + ".csv", ContentType: "text/csv", Data: out}
	case ExportFormatPDF:
		data.Widths = []float64{1.2, 0.6, 1.2, 1.1, 2.4, 1.6, 1.6, 1.6, 1.1}
		out, err := s.pdf.Render(export.Document{
			Title:     timetable.Title,
			Subtitles: exportSubtitles(timetable),
			Data:      data,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: out}
	}

	s.logger.Debug("timetable exported", zap.String("timetable_id", id), zap.String("format", string(format)), zap.Int("bytes", len(file.Data)))
	return &file, nil
}

// buildWeeklyGrid lists slots Monday to Sunday, each day ordered by start time.
// Break timings are appended to every scheduled day.
func buildWeeklyGrid(timetable *models.Timetable) export.Dataset {
	days := append([]models.DaySchedule(nil), timetable.Schedule...)
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].DayOfWeek.Index() < days[j].DayOfWeek.Index()
	})

	rows := make([]map[string]string, 0)
	for _, day := range days {
		type entry struct {
			order gridOrder
			row   map[string]string
		}
		entries := make([]entry, 0, len(day.Slots)+len(timetable.BreakTimings))
		for _, slot := range day.Slots {
			entries = append(entries, entry{order: gridOrder{slot.StartTime, 0}, row: map[string]string{
				"Day":      string(day.DayOfWeek),
				"Slot":     strconv.Itoa(slot.SlotNumber),
				"Time":     slot.Range().String(),
				"Activity": string(slot.ActivityType),
				"Title":    slot.Label(),
				"Venue":    displayRef(slot.VenueName, slot.VenueID),
				"Faculty":  displayRef(slot.FacultyName, slot.FacultyID),
				"Trainer":  displayRef(slot.TrainerName, slot.TrainerID),
				"Status":   string(slot.Status),
			}})
		}
		for _, b := range timetable.BreakTimings {
			entries = append(entries, entry{order: gridOrder{b.StartTime, 1}, row: map[string]string{
				"Day":      string(day.DayOfWeek),
				"Time":     models.TimeRange{Start: b.StartTime, End: b.EndTime}.String(),
				"Activity": string(models.ActivityBreak),
				"Title":    b.Name,
			}})
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].order.less(entries[j].order) })
		for _, e := range entries {
			rows = append(rows, e.row)
		}
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

// gridOrder sorts grid rows by start time, slots before breaks on ties.
type gridOrder struct {
	start models.ClockTime
	rank  int
}

func (o gridOrder) less(other gridOrder) bool {
	if o.start != other.start {
		return o.start < other.start
	}
	return o.rank < other.rank
}

func displayRef(name string, id *string) string {
	if name != "" {
		return name
	}
	if id != nil {
		return *id
	}
	return ""
}

func exportSubtitles(timetable *models.Timetable) []string {
	lines := []string{fmt.Sprintf("Academic year %s, %s semester", timetable.AcademicYear, strings.ToLower(string(timetable.Semester)))}
	lines = append(lines, fmt.Sprintf("%s to %s, status %s, version %d",
		timetable.StartDate.Format(dateLayout), timetable.EndDate.Format(dateLayout), timetable.Status, timetable.Version))
	if open := timetable.UnresolvedCount(); open > 0 {
		lines = append(lines, fmt.Sprintf("%d unresolved conflict(s)", open))
	}
	return lines
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

func exportFilename(timetable *models.Timetable) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(timetable.Title), "-"), "-")
	if base == "" {
		base = "timetable"
	}
	return fmt.Sprintf("%s-v%d", base, timetable.Version)
}
