package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/sensei-edu/sensei-api/internal/service"
)

const (
	// MaxCellChars is the xlsx per-cell character ceiling.
	MaxCellChars = 32767
	cellHeadroom = 10
)

// TruncateCell cuts s so it fits a spreadsheet cell with a little headroom.
func TruncateCell(s string) string {
	limit := MaxCellChars - cellHeadroom
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

type sheetRow struct {
	cells []any
	bold  bool
}

// maxSheetRows is the xlsx row ceiling per sheet.
var maxSheetRows = excelize.TotalRows

type sheetData struct {
	name    string
	widths  []float64
	rows    []sheetRow
	omitted int
}

// push keeps the last row of the sheet free for an omission note.
func (s *sheetData) push(row sheetRow) {
	if len(s.rows) >= maxSheetRows-1 {
		s.omitted++
		return
	}
	s.rows = append(s.rows, row)
}

func (s *sheetData) add(cells ...any) { s.push(sheetRow{cells: cells}) }

func (s *sheetData) heading(cells ...any) { s.push(sheetRow{cells: cells, bold: true}) }

func (s *sheetData) blank() { s.push(sheetRow{}) }

func (s *sheetData) finalRows() []sheetRow {
	if s.omitted == 0 {
		return s.rows
	}
	note := fmt.Sprintf("%d more rows omitted: sheet row limit of %d reached", s.omitted, maxSheetRows)
	return append(s.rows, sheetRow{cells: []any{note}, bold: true})
}

// WriteIndividualWorkbook produces the Session Summary, Sections, File
// Access Log and Events sheets for one session.
func WriteIndividualWorkbook(v service.SessionView, generatedAt time.Time) ([]byte, error) {
	summary := &sheetData{name: "Session Summary", widths: []float64{28, 40}}
	summary.heading("Teacher Session Detailed Report")
	summary.add("Generated On", formatTime(generatedAt))
	summary.blank()
	summary.heading("Session Information")
	summary.add("Teacher Name", v.Username)
	summary.add("Course Class", v.CourseClassDisplay)
	summary.add("Section", v.SectionDisplay)
	summary.add("Subject", v.SubjectDisplay)
	summary.add("Login Time", formatTime(loginOf(v)))
	summary.add("Logout Time", logoutLabel(logoutOf(v), "Session Active"))
	summary.blank()
	summary.heading("Session Metrics")
	summary.add("Total Duration (minutes)", Minutes(v.Duration()))
	summary.add("Active Time (minutes)", Minutes(v.ActiveTimeComputed))
	summary.add("Idle Time (minutes)", Minutes(v.IdleTimeComputed))
	summary.add("Number of Sections", len(v.Sections))
	summary.add("Total Events", v.EventCount)
	summary.add("File Accesses", v.FileAccessCount)

	sections := &sheetData{name: "Sections", widths: []float64{30, 28, 28, 18}}
	sections.heading("Section", "Start Time", "End Time", "Number of Events")
	for _, sec := range v.Sections {
		sections.add(sec.SectionIDDisplay, sec.StartTime, sec.EndTime, sec.EventCount)
	}

	files := &sheetData{name: "File Access Log", widths: []float64{36, 28, 26}}
	files.heading("File Name", "Folder Name", "Accessed At")
	for _, f := range v.FileAccessLog {
		files.add(f.FileName, orNA(f.FolderName), formatTime(f.AccessedAt))
	}

	events := &sheetData{name: "Events", widths: []float64{30, 14, 12, 26, 80}}
	events.heading("Session Section", "Section Index", "Event Type", "Timestamp", "Data")
	for i, sec := range v.Sections {
		for _, ev := range sec.Events {
			events.add(sec.SectionIDDisplay, i+1, ev.Type, formatMillis(ev.Timestamp), string(ev.Data))
		}
	}

	return writeWorkbook(summary, sections, files, events)
}

// WriteBulkWorkbook produces the Summary, Sessions, File Access and Events
// sheets across every exported session.
func WriteBulkWorkbook(b BulkReport) ([]byte, error) {
	summary := &sheetData{name: "Summary", widths: []float64{30, 14, 18, 18, 12, 14, 36, 36, 36}}
	summary.heading("Teacher Sessions Report")
	summary.blank()
	summary.add("Report Period", b.Period())
	summary.add("Generated On", formatTime(b.GeneratedAt))
	summary.blank()
	summary.heading("Overall Summary")
	summary.add("Total Sessions", b.Totals.Sessions)
	summary.add("Total Active Time (minutes)", Minutes(b.Totals.ActiveTime))
	summary.add("Total Idle Time (minutes)", Minutes(b.Totals.IdleTime))
	summary.add("Total Events", b.Totals.Events)
	summary.add("Total File Accesses", b.Totals.FileAccesses)
	summary.blank()
	summary.heading("Teacher Performance Summary")
	summary.heading("Teacher Name", "Sessions", "Active Time (min)", "Idle Time (min)", "Events", "File Access", "Course Classes", "Sections", "Subjects")
	for _, r := range b.Rollups {
		summary.add(r.Username, r.Sessions, Minutes(r.ActiveTime), Minutes(r.IdleTime), r.Events, r.FileAccesses,
			strings.Join(r.CourseClasses, ", "), strings.Join(r.Sections, ", "), strings.Join(r.Subjects, ", "))
	}

	sessions := &sheetData{name: "Sessions", widths: []float64{24, 24, 24, 24, 26, 26, 14, 16, 14, 10, 12}}
	sessions.heading("Teacher", "Course Class", "Section", "Subject", "Login Time", "Logout Time",
		"Duration (min)", "Active Time (min)", "Idle Time (min)", "Events", "File Access")
	for _, v := range b.Sessions {
		sessions.add(v.Username, v.CourseClassDisplay, v.SectionDisplay, v.SubjectDisplay,
			formatTime(loginOf(v)), logoutLabel(logoutOf(v), "Active"),
			Minutes(v.Duration()), Minutes(v.ActiveTimeComputed), Minutes(v.IdleTimeComputed),
			v.EventCount, v.FileAccessCount)
	}

	files := &sheetData{name: "File Access", widths: []float64{24, 36, 28, 26, 24, 24, 24}}
	files.heading("Teacher", "File Name", "Folder Name", "Accessed At", "Course Class", "Section", "Subject")
	for _, v := range b.Sessions {
		for _, f := range v.FileAccessLog {
			files.add(v.Username, f.FileName, orNA(f.FolderName), formatTime(f.AccessedAt),
				v.CourseClassDisplay, v.SectionDisplay, v.SubjectDisplay)
		}
	}

	events := &sheetData{name: "Events", widths: []float64{24, 24, 24, 24, 28, 12, 26, 80}}
	events.heading("Teacher", "Course Class", "Section", "Subject", "Session Section", "Event Type", "Timestamp", "Data")
	for _, v := range b.Sessions {
		for _, sec := range v.Sections {
			for _, ev := range sec.Events {
				events.add(v.Username, v.CourseClassDisplay, v.SectionDisplay, v.SubjectDisplay,
					sec.SectionIDDisplay, ev.Type, formatMillis(ev.Timestamp), string(ev.Data))
			}
		}
	}

	return writeWorkbook(summary, sessions, files, events)
}

func writeWorkbook(sheets ...*sheetData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, fmt.Errorf("rename sheet %s: %w", sheet.name, err)
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet.name, err)
		}
		if err := streamSheet(f, sheet, boldStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func streamSheet(f *excelize.File, sheet *sheetData, boldStyle int) error {
	sw, err := f.NewStreamWriter(sheet.name)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", sheet.name, err)
	}
	for i, w := range sheet.widths {
		if err := sw.SetColWidth(i+1, i+1, w); err != nil {
			return fmt.Errorf("size sheet %s: %w", sheet.name, err)
		}
	}
	for i, row := range sheet.finalRows() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row.cells))
		for j, v := range row.cells {
			if s, ok := v.(string); ok {
				v = TruncateCell(s)
			}
			if row.bold {
				v = excelize.Cell{StyleID: boldStyle, Value: v}
			}
			values[j] = v
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write sheet %s row %d: %w", sheet.name, i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", sheet.name, err)
	}
	return nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return strconv.FormatInt(ms, 10)
	}
	return formatTime(time.UnixMilli(ms))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
