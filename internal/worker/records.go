package worker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record is one line of an IOC list: type,value,feed[,timestamp]
type Record struct {
	Line   int
	Type   string
	Value  string
	Feed   string
	SeenAt time.Time
}

// LineError reports a line that could not be imported
type LineError struct {
	Line int    `json:"line"`
	Text string `json:"text"`
	Err  string `json:"error"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

// ParseRecords reads CSV records. Blank lines, '#' comments and a leading
// "type,value,feed" header are skipped. Records without a timestamp are
// stamped with now. Malformed lines are returned as LineErrors; only a
// read failure aborts.
func ParseRecords(r io.Reader, now time.Time) ([]Record, []LineError, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var records []Record
	var bad []LineError
	first := true

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				bad = append(bad, LineError{Line: perr.Line, Err: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read records: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(fields[0]), "type") {
				continue
			}
		}

		text := strings.Join(fields, ",")
		if len(fields) < 3 || len(fields) > 4 {
			bad = append(bad, LineError{Line: line, Text: text, Err: "expected type,value,feed[,timestamp]"})
			continue
		}

		rec := Record{
			Line:   line,
			Type:   strings.TrimSpace(fields[0]),
			Value:  strings.TrimSpace(fields[1]),
			Feed:   strings.TrimSpace(fields[2]),
			SeenAt: now,
		}
		if rec.Feed == "" {
			bad = append(bad, LineError{Line: line, Text: text, Err: "empty feed"})
			continue
		}
		if len(fields) == 4 && strings.TrimSpace(fields[3]) != "" {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[3]))
			if err != nil {
				bad = append(bad, LineError{Line: line, Text: text, Err: "timestamp is not RFC 3339"})
				continue
			}
			rec.SeenAt = ts
		}
		records = append(records, rec)
	}

	return records, bad, nil
}
