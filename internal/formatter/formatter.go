// package formatter renders track selections to export formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/desertthunder/botm/internal/models"
)

// ToCSV converts a track selection to CSV with columns: Position, ID, Name, Artist, URI
func ToCSV(tracks []models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Name", "Artist", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range tracks {
		record := []string{
			fmt.Sprintf("%d", i+1),
			track.ID,
			track.Name,
			track.Artist,
			track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown converts a track selection to a Markdown table under the given title.
func ToMarkdown(title string, tracks []models.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Tracks:** %d\n\n", len(tracks)))

	if len(tracks) == 0 {
		buf.WriteString("*No tracks.*\n")
		return buf.Bytes()
	}

	buf.WriteString("| # | Name | Artist |\n")
	buf.WriteString("|---|------|--------|\n")
	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, track.Name, track.Artist))
	}

	return buf.Bytes()
}

// ToText converts a track selection to a numbered plain-text list.
func ToText(tracks []models.Track) []byte {
	var buf bytes.Buffer

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.Artist, track.Name))
	}
	if len(tracks) == 0 {
		buf.WriteString("No tracks.\n")
	}

	return buf.Bytes()
}
