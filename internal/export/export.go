// Package export renders participant rosters as downloadable CSV documents.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/avolkov/eventbot/internal/model"
)

// Document is a rendered roster ready to hand to the transport.
type Document struct {
	Filename string
	Content  []byte
}

// BuildRoster renders one CSV row per participant under the fixed header.
// Rows keep the order they arrive in (registration time ascending).
func BuildRoster(eventID string, parts []model.Participant) (Document, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"ID", "Full Name", "Registration Date"}); err != nil {
		return Document{}, fmt.Errorf("write header: %w", err)
	}
	for _, p := range parts {
		row := []string{
			strconv.FormatInt(p.TgID, 10),
			p.FullName,
			p.RegisteredAt.Format("2006-01-02 15:04"),
		}
		if err := w.Write(row); err != nil {
			return Document{}, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Document{}, fmt.Errorf("flush csv: %w", err)
	}

	return Document{
		Filename: fmt.Sprintf("participants_%s.csv", eventID),
		Content:  buf.Bytes(),
	}, nil
}
