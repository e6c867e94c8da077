package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry is one decoded record of the JSON run log.
type Entry struct {
	Time       time.Time
	Level      string
	Message    string
	Component  string
	RunID      string
	BatchIndex int
	Stage      string
	EventType  string
	// Fields holds every remaining attribute, stringified.
	Fields map[string]string
	Raw    string
}

var reservedKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "source": {},
	"component": {}, "run_id": {}, "batch_index": {}, "stage": {}, "event_type": {},
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects return
// an error.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("decode log line: %w", err)
	}
	entry := Entry{
		Level:     stringField(raw, "level"),
		Message:   stringField(raw, "msg"),
		Component: stringField(raw, "component"),
		RunID:     stringField(raw, "run_id"),
		Stage:     stringField(raw, "stage"),
		EventType: stringField(raw, "event_type"),
		Fields:    make(map[string]string),
		Raw:       line,
	}
	if ts := stringField(raw, "ts"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Time = parsed
		}
	}
	if idx, ok := raw["batch_index"].(float64); ok {
		entry.BatchIndex = int(idx)
	}
	for key, value := range raw {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		entry.Fields[key] = stringify(value)
	}
	return entry, nil
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	RunID      string
	BatchIndex int
	MinLevel   string
}

// Match reports whether e passes the filter. RunID matches by prefix.
func (f Filter) Match(e Entry) bool {
	if f.RunID != "" && !strings.HasPrefix(e.RunID, f.RunID) {
		return false
	}
	if f.BatchIndex > 0 && e.BatchIndex != f.BatchIndex {
		return false
	}
	if f.MinLevel != "" && levelRank(e.Level) < levelRank(f.MinLevel) {
		return false
	}
	return true
}

// Format renders an entry as a single human-readable line.
func Format(e Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(e.Level))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	if e.BatchIndex > 0 {
		fmt.Fprintf(&b, " batch %d", e.BatchIndex)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " (%s)", e.Stage)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Fields[k])
	}
	return b.String()
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \t\"") {
			return strconv.Quote(v)
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
