package wire

// Agent is a member of the closed agent-identifier set. Extending the set is
// a code change.
type Agent string

const (
	AgentClaudeCode    Agent = "CLAUDE_CODE"
	AgentClaudeAI      Agent = "CLAUDE_AI"
	AgentClaudeWeb     Agent = "CLAUDE_WEB"
	AgentClaudeWebBee1 Agent = "CLAUDE_WEB_BEE_1"
	AgentClaudeWebBee2 Agent = "CLAUDE_WEB_BEE_2"
	AgentGPT4          Agent = "GPT4"
	AgentGPT5          Agent = "GPT5"
	AgentChatGPT       Agent = "CHATGPT"
	AgentDave          Agent = "DAVE"
	AgentBot001        Agent = "BOT_001"

	// Broadcast copies a message into every non-sentinel agent's queue.
	Broadcast Agent = "ALL"
	// BestAvailable routes a message to the first available agent.
	BestAvailable Agent = "ANY"
)

// PendingAssignment is the reserved queue id holding best-available messages
// that found no available agent. It is not a wire agent.
const PendingAssignment = "PENDING_ANY"

var agents = []Agent{
	AgentClaudeCode,
	AgentClaudeAI,
	AgentClaudeWeb,
	AgentClaudeWebBee1,
	AgentClaudeWebBee2,
	AgentGPT4,
	AgentGPT5,
	AgentChatGPT,
	AgentDave,
	AgentBot001,
}

// Agents returns the real (non-sentinel) agents in declaration order.
func Agents() []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	return out
}

// ParseAgent returns the agent named s, including the two sentinels.
func ParseAgent(s string) (Agent, bool) {
	a := Agent(s)
	if a.Valid() {
		return a, true
	}
	return "", false
}

// Valid reports whether a is in the closed set.
func (a Agent) Valid() bool {
	if a.IsSentinel() {
		return true
	}
	for _, known := range agents {
		if a == known {
			return true
		}
	}
	return false
}

// IsSentinel reports whether a is a routing directive rather than an agent.
func (a Agent) IsSentinel() bool {
	return a == Broadcast || a == BestAvailable
}

func (a Agent) String() string { return string(a) }

// Type is a message kind. Each kind carries a fixed priority.
type Type int

const (
	TypeInvalid Type = iota
	TypeEscalate
	TypeError
	TypeReview
	TypeTask
	TypeQuery
	TypeResponse
	TypeHandoff
	TypeReport
	TypeApprove
)

// Types returns every valid message type, most urgent first.
func Types() []Type {
	return []Type{
		TypeEscalate, TypeError, TypeReview, TypeTask, TypeQuery,
		TypeResponse, TypeHandoff, TypeReport, TypeApprove,
	}
}

// Priority returns the type's priority; lower is more urgent. Invalid types
// sort last.
func (t Type) Priority() int {
	switch t {
	case TypeEscalate:
		return 1
	case TypeError, TypeReview:
		return 2
	case TypeTask, TypeQuery:
		return 3
	case TypeResponse, TypeHandoff:
		return 4
	case TypeReport:
		return 5
	case TypeApprove:
		return 6
	case TypeInvalid:
		return 99
	}
	return 99
}

func (t Type) String() string {
	switch t {
	case TypeEscalate:
		return "ESCALATE"
	case TypeError:
		return "ERROR"
	case TypeReview:
		return "REVIEW"
	case TypeTask:
		return "TASK"
	case TypeQuery:
		return "QUERY"
	case TypeResponse:
		return "RESPONSE"
	case TypeHandoff:
		return "HANDOFF"
	case TypeReport:
		return "REPORT"
	case TypeApprove:
		return "APPROVE"
	case TypeInvalid:
		return "INVALID"
	}
	return "INVALID"
}

// Valid reports whether t is one of the declared message types.
func (t Type) Valid() bool {
	return t >= TypeEscalate && t <= TypeApprove
}

// ParseType returns the message type spelled s (case sensitive).
func ParseType(s string) (Type, bool) {
	for _, t := range Types() {
		if t.String() == s {
			return t, true
		}
	}
	return TypeInvalid, false
}
