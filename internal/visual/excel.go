package visual

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// lookupExcel searches the workbook for the first row whose search column
// contains searchValue (case-insensitive substring) and projects the return
// columns into a string map. The first row is treated as the header.
func lookupExcel(filePath, sheetName, searchColumn, searchValue string, returnColumns []string) (map[string]string, *stepFailure) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, failf(CodeFileNotFound, "workbook not found: %s", filePath)
	}
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, failf(CodeFileNotFound, "opening workbook %s: %v", filePath, err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, failf(CodeFileNotFound, "reading sheet %s: %v", sheetName, err)
	}
	if len(rows) < 2 {
		return nil, failf(CodeNoMatch, "sheet %s has no data rows", sheetName)
	}

	header := rows[0]
	colIndex := map[string]int{}
	for i, name := range header {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	searchIdx, found := colIndex[strings.ToLower(strings.TrimSpace(searchColumn))]
	if !found {
		return nil, failf(CodeUnknownColumn, "column %q not in sheet %s", searchColumn, sheetName)
	}
	for _, col := range returnColumns {
		if _, found := colIndex[strings.ToLower(strings.TrimSpace(col))]; !found {
			return nil, failf(CodeUnknownColumn, "column %q not in sheet %s", col, sheetName)
		}
	}

	needle := strings.ToLower(searchValue)
	for _, row := range rows[1:] {
		if searchIdx >= len(row) {
			continue
		}
		if !strings.Contains(strings.ToLower(row[searchIdx]), needle) {
			continue
		}
		out := make(map[string]string, len(returnColumns))
		for _, col := range returnColumns {
			idx := colIndex[strings.ToLower(strings.TrimSpace(col))]
			if idx < len(row) {
				out[col] = row[idx]
			} else {
				out[col] = ""
			}
		}
		return out, nil
	}
	return nil, failf(CodeNoMatch, "no row in column %q contains %q", searchColumn, searchValue)
}

func failf(code, format string, args ...any) *stepFailure {
	return &stepFailure{Code: code, Message: fmt.Sprintf(format, args...)}
}
