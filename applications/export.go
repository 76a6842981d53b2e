package applications

import (
	"io"
	"strings"
	"time"
)

var exportHeader = []string{"Name", "Email", "Roll Number", "Skills", "GitHub Link", "Reason", "Role", "Status", "Applied At"}

// WriteCSV writes apps as a comma-separated table. Every cell is quoted and
// timestamps are rendered as UTC RFC 3339 so the output does not depend on the
// viewer's locale. Rows are separated by "\n" with no trailing newline.
func WriteCSV(w io.Writer, apps []Application) error {
	var b strings.Builder
	writeRow(&b, exportHeader)
	for _, app := range apps {
		link := ""
		if app.GithubLink != nil {
			link = *app.GithubLink
		}
		b.WriteByte('\n')
		writeRow(&b, []string{
			app.Name,
			app.Email,
			app.RollNumber,
			app.Skills,
			link,
			app.Reason,
			app.Role,
			string(app.Status),
			app.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
}

// ExportFilename names the download for an export taken at now.
func ExportFilename(now time.Time) string {
	return "applications_" + now.UTC().Format("2006-01-02") + ".csv"
}
