// Package wire decodes and encodes the filename format that addresses durable
// messages: YYYY-MM-DD-HHMM-FROM-TO-TYPE-SUBJECT.md
package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extension is the only accepted message file extension.
const Extension = ".md"

// namePattern splits a filename into its eight fields. Agent ids cannot contain
// '-', so the split is unambiguous even when the subject does.
var namePattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})-(\d{4})-([A-Z_0-9]+)-([A-Z_0-9]+)-([A-Z]+)-(.+)\.md$`,
)

// Message is a decoded durable message. Its identity is Filename.
type Message struct {
	Filename  string
	Timestamp time.Time
	From      Agent
	To        Agent
	Type      Type
	Subject   string
	Path      string // backing file, empty when the message has no file
}

// Priority returns the message type's priority (lower is more urgent).
func (m Message) Priority() int {
	return m.Type.Priority()
}

// fields holds the raw regexp groups of a structurally valid name.
type fields struct {
	year, month, day, hhmm string
	from, to, typ, subject string
}

func split(name string) (fields, bool) {
	g := namePattern.FindStringSubmatch(name)
	if g == nil {
		return fields{}, false
	}
	return fields{
		year: g[1], month: g[2], day: g[3], hhmm: g[4],
		from: g[5], to: g[6], typ: g[7], subject: g[8],
	}, true
}

// timestamp builds a calendar-checked UTC time. time.Date normalizes
// out-of-range values, so the result is compared against its inputs.
func (f fields) timestamp() (time.Time, bool) {
	year, _ := strconv.Atoi(f.year)
	month, _ := strconv.Atoi(f.month)
	day, _ := strconv.Atoi(f.day)
	hour, _ := strconv.Atoi(f.hhmm[:2])
	minute, _ := strconv.Atoi(f.hhmm[2:])

	if year < 1 || month < 1 || month > 12 || hour > 23 || minute > 59 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// Decode parses a message filename. It is pure and total: any failure
// returns a zero Message and false, never a partial result.
func Decode(name string) (Message, bool) {
	if !strings.HasSuffix(name, Extension) {
		return Message{}, false
	}
	f, ok := split(name)
	if !ok {
		return Message{}, false
	}
	ts, ok := f.timestamp()
	if !ok {
		return Message{}, false
	}
	from, ok := ParseAgent(f.from)
	if !ok {
		return Message{}, false
	}
	to, ok := ParseAgent(f.to)
	if !ok {
		return Message{}, false
	}
	typ, ok := ParseType(f.typ)
	if !ok {
		return Message{}, false
	}
	if !safeSubject(f.subject) {
		return Message{}, false
	}
	return Message{
		Filename:  name,
		Timestamp: ts,
		From:      from,
		To:        to,
		Type:      typ,
		Subject:   f.subject,
	}, true
}

// Validate reports whether name decodes, with the reasons it does not.
// Reasons are ordered the same way Decode checks them.
func Validate(name string) (bool, []string) {
	if !strings.HasSuffix(name, Extension) {
		return false, []string{"filename must end with " + Extension}
	}
	f, ok := split(name)
	if !ok {
		return false, []string{"filename does not match pattern YYYY-MM-DD-HHMM-FROM-TO-TYPE-SUBJECT.md"}
	}

	var reasons []string
	if _, ok := f.timestamp(); !ok {
		reasons = append(reasons, fmt.Sprintf("invalid timestamp %s-%s-%s %s", f.year, f.month, f.day, f.hhmm))
	}
	if _, ok := ParseAgent(f.from); !ok {
		reasons = append(reasons, fmt.Sprintf("unknown sender agent %q", f.from))
	}
	if _, ok := ParseAgent(f.to); !ok {
		reasons = append(reasons, fmt.Sprintf("unknown recipient agent %q", f.to))
	}
	if _, ok := ParseType(f.typ); !ok {
		reasons = append(reasons, fmt.Sprintf("unknown message type %q", f.typ))
	}
	if !safeSubject(f.subject) {
		reasons = append(reasons, fmt.Sprintf("subject %q contains a path separator", f.subject))
	}
	return len(reasons) == 0, reasons
}

// safeSubject reports whether subject can name a file inside a queue
// directory.
func safeSubject(subject string) bool {
	return !strings.ContainsAny(subject, `/\`)
}

// FormatName builds the filename for a message. The subject may contain '-'
// but not path separators.
func FormatName(t time.Time, from, to Agent, typ Type, subject string) (string, error) {
	if !from.Valid() {
		return "", fmt.Errorf("wire: unknown sender agent %q", from)
	}
	if !to.Valid() {
		return "", fmt.Errorf("wire: unknown recipient agent %q", to)
	}
	if !typ.Valid() {
		return "", fmt.Errorf("wire: unknown message type %d", typ)
	}
	if subject == "" {
		return "", fmt.Errorf("wire: subject is required")
	}
	if !safeSubject(subject) {
		return "", fmt.Errorf("wire: subject %q contains a path separator", subject)
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s%s",
		t.UTC().Format("2006-01-02-1504"), from, to, typ, subject, Extension), nil
}
