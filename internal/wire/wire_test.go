package wire

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecode_Valid(t *testing.T) {
	name := "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-implement-status-tracker.md"
	msg, ok := Decode(name)
	if !ok {
		t.Fatalf("Decode(%q) failed", name)
	}
	if msg.Filename != name {
		t.Errorf("Filename = %q", msg.Filename)
	}
	want := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	if !msg.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, want)
	}
	if msg.From != AgentClaudeCode {
		t.Errorf("From = %q", msg.From)
	}
	if msg.To != AgentClaudeAI {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Type != TypeTask {
		t.Errorf("Type = %v", msg.Type)
	}
	if msg.Subject != "implement-status-tracker" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.Priority() != 3 {
		t.Errorf("Priority = %d, want 3", msg.Priority())
	}
}

func TestDecode_Sentinels(t *testing.T) {
	for _, to := range []string{"ALL", "ANY"} {
		msg, ok := Decode("2025-10-17-0900-DAVE-" + to + "-REPORT-weekly.md")
		if !ok {
			t.Fatalf("Decode with %s failed", to)
		}
		if !msg.To.IsSentinel() {
			t.Errorf("%s should be a sentinel", to)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"wrong extension", "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-test.txt"},
		{"bad month", "2025-13-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-test.md"},
		{"bad day", "2025-02-30-0900-CLAUDE_CODE-CLAUDE_AI-TASK-test.md"},
		{"bad hour", "2025-10-17-2500-CLAUDE_CODE-CLAUDE_AI-TASK-test.md"},
		{"bad minute", "2025-10-17-0960-CLAUDE_CODE-CLAUDE_AI-TASK-test.md"},
		{"year zero", "0000-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-test.md"},
		{"subject with slash", "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-../../../x.md"},
		{"subject with backslash", `2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-..\x.md`},
		{"unknown sender", "2025-10-17-0900-INVALID_AGENT-CLAUDE_AI-TASK-test.md"},
		{"unknown recipient", "2025-10-17-0900-DAVE-NOBODY-TASK-test.md"},
		{"unknown type", "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-INVALID-test.md"},
		{"lowercase type", "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-task-test.md"},
		{"missing subject", "2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK.md"},
		{"empty", ""},
		{"garbage", "invalid-filename.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := Decode(tt.file)
			if ok {
				t.Fatalf("Decode(%q) succeeded, want failure", tt.file)
			}
			if msg != (Message{}) {
				t.Errorf("Decode returned partial result %+v", msg)
			}
			valid, reasons := Validate(tt.file)
			if valid {
				t.Error("Validate reported valid")
			}
			if len(reasons) == 0 {
				t.Error("Validate returned no reasons")
			}
		})
	}
}

func TestDecode_Deterministic(t *testing.T) {
	name := "2025-10-17-0900-DAVE-GPT5-QUERY-why-the-build-broke.md"
	a, okA := Decode(name)
	b, okB := Decode(name)
	if okA != okB || a != b {
		t.Errorf("Decode not deterministic: %+v vs %+v", a, b)
	}
}

func TestValidate_Valid(t *testing.T) {
	ok, reasons := Validate("2025-10-17-0900-CLAUDE_CODE-CLAUDE_AI-TASK-test.md")
	if !ok {
		t.Errorf("Validate = false, reasons %v", reasons)
	}
	if len(reasons) != 0 {
		t.Errorf("reasons = %v, want none", reasons)
	}
}

func TestValidate_ReasonsOrdered(t *testing.T) {
	ok, reasons := Validate("2025-13-40-0900-NOBODY-DAVE-BOGUS-x.md")
	if ok {
		t.Fatal("expected invalid")
	}
	if len(reasons) != 3 {
		t.Fatalf("reasons = %v, want 3", reasons)
	}
	if !strings.Contains(reasons[0], "timestamp") {
		t.Errorf("reasons[0] = %q, want timestamp first", reasons[0])
	}
	if !strings.Contains(reasons[1], "sender") {
		t.Errorf("reasons[1] = %q, want sender second", reasons[1])
	}
	if !strings.Contains(reasons[2], "type") {
		t.Errorf("reasons[2] = %q, want type third", reasons[2])
	}
}

func TestValidate_ExtensionFirst(t *testing.T) {
	_, reasons := Validate("2025-10-17-0900-NOBODY-DAVE-TASK-x.txt")
	if len(reasons) != 1 || !strings.Contains(reasons[0], ".md") {
		t.Errorf("reasons = %v, want single extension reason", reasons)
	}
}

func TestTypePriorities(t *testing.T) {
	want := map[Type]int{
		TypeEscalate: 1, TypeError: 2, TypeReview: 2, TypeTask: 3, TypeQuery: 3,
		TypeResponse: 4, TypeHandoff: 4, TypeReport: 5, TypeApprove: 6,
	}
	for typ, p := range want {
		if got := typ.Priority(); got != p {
			t.Errorf("%s.Priority() = %d, want %d", typ, got, p)
		}
		parsed, ok := ParseType(typ.String())
		if !ok || parsed != typ {
			t.Errorf("ParseType(%q) = %v, %v", typ.String(), parsed, ok)
		}
	}
	if len(Types()) != len(want) {
		t.Errorf("Types() has %d entries, want %d", len(Types()), len(want))
	}
	if TypeInvalid.Valid() {
		t.Error("TypeInvalid should not be valid")
	}
}

func TestPriorityOrdering(t *testing.T) {
	esc, _ := Decode("2025-10-17-0900-DAVE-CLAUDE_CODE-ESCALATE-urgent.md")
	task, _ := Decode("2025-10-17-0900-DAVE-CLAUDE_CODE-TASK-normal.md")
	report, _ := Decode("2025-10-17-0900-DAVE-CLAUDE_CODE-REPORT-status.md")
	if !(esc.Priority() < task.Priority() && task.Priority() < report.Priority()) {
		t.Errorf("priorities out of order: %d %d %d", esc.Priority(), task.Priority(), report.Priority())
	}
}

func TestAgents(t *testing.T) {
	all := Agents()
	if len(all) != 10 {
		t.Fatalf("Agents() = %d entries, want 10", len(all))
	}
	for _, a := range all {
		if a.IsSentinel() {
			t.Errorf("Agents() includes sentinel %q", a)
		}
	}
	if _, ok := ParseAgent(PendingAssignment); ok {
		t.Error("PENDING_ANY must not parse as a wire agent")
	}
}

func TestFormatName_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 10, 17, 14, 5, 0, 0, time.UTC)
	name, err := FormatName(ts, AgentDave, Broadcast, TypeHandoff, "shift-change")
	if err != nil {
		t.Fatalf("FormatName: %v", err)
	}
	if name != "2025-10-17-1405-DAVE-ALL-HANDOFF-shift-change.md" {
		t.Errorf("name = %q", name)
	}
	msg, ok := Decode(name)
	if !ok {
		t.Fatalf("Decode(%q) failed", name)
	}
	if !msg.Timestamp.Equal(ts) || msg.Type != TypeHandoff || msg.To != Broadcast {
		t.Errorf("round trip mismatch: %+v", msg)
	}
}

func TestFormatName_Errors(t *testing.T) {
	now := time.Now()
	if _, err := FormatName(now, "NOBODY", AgentDave, TypeTask, "x"); err == nil {
		t.Error("expected error for unknown sender")
	}
	if _, err := FormatName(now, AgentDave, "NOBODY", TypeTask, "x"); err == nil {
		t.Error("expected error for unknown recipient")
	}
	if _, err := FormatName(now, AgentDave, AgentGPT4, TypeInvalid, "x"); err == nil {
		t.Error("expected error for invalid type")
	}
	if _, err := FormatName(now, AgentDave, AgentGPT4, TypeTask, ""); err == nil {
		t.Error("expected error for empty subject")
	}
	if _, err := FormatName(now, AgentDave, AgentGPT4, TypeTask, "a/b"); err == nil {
		t.Error("expected error for subject with separator")
	}
}

func TestCreateTaskFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	ts := time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC)
	path, err := CreateTaskFile(dir, ts, AgentDave, AgentGPT4, TypeTask, "write-tests", "please")
	if err != nil {
		t.Fatalf("CreateTaskFile: %v", err)
	}
	if filepath.Base(path) != "2025-10-17-0900-DAVE-GPT4-TASK-write-tests.md" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "please" {
		t.Errorf("content = %q", data)
	}
	if _, err := CreateTaskFile("", ts, AgentDave, AgentGPT4, TypeTask, "x", ""); err == nil {
		t.Error("expected error for empty dir")
	}
}
