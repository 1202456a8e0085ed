package logging

import (
	"regexp"
	"strconv"
)

// LogEntry is a parsed text log line, used by log-tailing tooling to index
// lines by component/level without re-parsing the raw string repeatedly.
type LogEntry struct {
	Raw        string
	Timestamp  string
	Level      string
	Category   string
	Component  string
	LogID      string
	SourceFile string
	SourceLine int
	Message    string
}

var textLinePattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] \[(\w+)\] \[([^\]]+)\](?: \[log_id=([^\]]+)\])? ([^\s:]+):(\d+) - (.*)$`,
)

// parseTextLogLine parses a line produced by ComponentLogger. Lines that do
// not match the expected shape are returned with only Raw and Message set.
func parseTextLogLine(line string) LogEntry {
	m := textLinePattern.FindStringSubmatch(line)
	if m == nil {
		return LogEntry{Raw: line, Message: line}
	}
	sourceLine, _ := strconv.Atoi(m[7])
	return LogEntry{
		Raw:        line,
		Timestamp:  m[1],
		Level:      m[2],
		Category:   m[3],
		Component:  m[4],
		LogID:      m[5],
		SourceFile: m[6],
		SourceLine: sourceLine,
		Message:    m[8],
	}
}
