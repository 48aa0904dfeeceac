package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	textTimestampFormat = "15:04:05.000"
	jsonTimestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

var levelColors = map[Level]string{
	DebugLevel: "\033[90m",
	InfoLevel:  "\033[34m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
	FatalLevel: "\033[31m",
}

// TextFormatter writes one line per entry:
//
//	15:04:05.000 [INFO] [3f2a9c1e] #2 client/call: Step passed | step=3
//
// The run id is shortened to its first UUID block and the request id is
// prefixed with '#'. Both are left out of the trailing key=value list.
type TextFormatter struct {
	TimestampFormat  string
	DisableColors    bool
	DisableTimestamp bool
	// DisableSorting keeps fields in map order
	DisableSorting bool
}

// NewTextFormatter creates a text formatter with colours and timestamps
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: textTimestampFormat}
}

// Format implements Formatter
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = textTimestampFormat
		}
		buf.WriteString(entry.Timestamp.Format(layout))
		buf.WriteByte(' ')
	}

	level := "[" + entry.Level.String() + "]"
	if color, ok := levelColors[entry.Level]; ok && !f.DisableColors {
		level = color + level + "\033[0m"
	}
	buf.WriteString(level)
	buf.WriteByte(' ')

	if entry.RunID != "" {
		fmt.Fprintf(&buf, "[%s] ", shortRunID(entry.RunID))
	}
	if entry.RequestID != "" {
		fmt.Fprintf(&buf, "#%s ", entry.RequestID)
	}
	if scope := entry.scope(); scope != "" {
		buf.WriteString(scope)
		buf.WriteString(": ")
	}
	buf.WriteString(entry.Message)

	if pairs := f.pairs(entry); len(pairs) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(strings.Join(pairs, " "))
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// pairs renders the fields not already shown in the line header
func (f *TextFormatter) pairs(entry *Entry) []string {
	shown := map[string]bool{RunIDKey: true, RequestIDKey: true}
	if entry.Component != "" {
		shown[ComponentKey] = true
		shown[OperationKey] = entry.Operation != ""
	}

	pairs := make([]string, 0, len(entry.Fields))
	for key, value := range entry.Fields {
		if shown[key] {
			continue
		}
		pairs = append(pairs, key+"="+textValue(value))
	}
	if !f.DisableSorting {
		sort.Strings(pairs)
	}
	return pairs
}

// scope is "component/operation", "component" or empty
func (e *Entry) scope() string {
	switch {
	case e.Component == "":
		return ""
	case e.Operation == "":
		return e.Component
	default:
		return e.Component + "/" + e.Operation
	}
}

func textValue(value interface{}) string {
	switch v := value.(type) {
	case error:
		return v.Error()
	case string:
		if strings.ContainsAny(v, " =\"") {
			return fmt.Sprintf("%q", v)
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// shortRunID keeps the first block of a UUID run id; the full id is in the
// JSON output and the report.
func shortRunID(runID string) string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}

// JSONFormatter writes one JSON object per entry with level, message,
// timestamp and every field at the top level. Collectors index the run_id
// and request_id fields.
type JSONFormatter struct {
	PrettyPrint      bool
	TimestampFormat  string
	DisableTimestamp bool
}

// NewJSONFormatter creates a JSON formatter with RFC 3339 millisecond
// timestamps
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: jsonTimestampFormat}
}

// Format implements Formatter
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	record := make(map[string]interface{}, len(entry.Fields)+3)
	for key, value := range entry.Fields {
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		record[key] = value
	}
	record["level"] = entry.Level.String()
	record["message"] = entry.Message
	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = jsonTimestampFormat
		}
		record["timestamp"] = entry.Timestamp.Format(layout)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if f.PrettyPrint {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(record); err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return buf.Bytes(), nil
}
