package roster

import (
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/width"
	"lottery-server-go/models"
)

var classHeaderPattern = regexp.MustCompile(`^([1-6])([A-D])$`)

// ImportFormatError reports a roster table without usable class columns.
type ImportFormatError struct {
	Reason string
	Err    error
}

func (e *ImportFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("roster import: %s: %v", e.Reason, e.Err)
	}
	return "roster import: " + e.Reason
}

func (e *ImportFormatError) Unwrap() error { return e.Err }

// ParseRows reads a grid where row 0 holds class labels such as "1A" in any
// column and row N holds the name of seat number N for each labelled column.
// Unrecognized headers and blank cells are skipped.
func ParseRows(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, &ImportFormatError{Reason: "table needs a header row and at least one name row"}
	}

	type column struct {
		index int
		grade int
		class byte
	}
	columns := make([]column, 0)
	for i, cell := range rows[0] {
		// full-width labels such as "１Ａ" are common in CJK sheets
		label := strings.ToUpper(width.Fold.String(strings.TrimSpace(cell)))
		m := classHeaderPattern.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		columns = append(columns, column{index: i, grade: int(m[1][0] - '0'), class: m[2][0]})
	}
	if len(columns) == 0 {
		return nil, &ImportFormatError{Reason: "no class columns in header row"}
	}

	entries := make([]models.Student, 0)
	for r := 1; r < len(rows); r++ {
		row := rows[r]
		for _, col := range columns {
			if col.index >= len(row) {
				continue
			}
			name := strings.TrimSpace(row[col.index])
			if name == "" {
				continue
			}
			id := models.StudentID{Grade: col.grade, Class: col.class, Seq: r}
			entries = append(entries, models.Student{ID: id, Name: name, ClassID: id.ClassLabel()})
		}
	}
	if len(entries) == 0 {
		return nil, &ImportFormatError{Reason: "class columns contain no names"}
	}
	return NewTable(entries), nil
}

// ReadWorkbook parses the first sheet of an .xlsx workbook.
func ReadWorkbook(file io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return nil, &ImportFormatError{Reason: "failed to open excel file", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, &ImportFormatError{Reason: "excel file does not contain any sheets"}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return nil, &ImportFormatError{Reason: fmt.Sprintf("failed to get rows from sheet %s", sheetName), Err: err}
	}

	t, err := ParseRows(rows)
	if err != nil {
		return nil, err
	}
	log.Printf("Parsed %d students in %d classes from sheet '%s'", t.Len(), len(t.Classes()), sheetName)
	return t, nil
}

// IsImportFormat reports whether err is an ImportFormatError.
func IsImportFormat(err error) bool {
	var fe *ImportFormatError
	return errors.As(err, &fe)
}
