// Package assembler composes federated search results into a single
// bounded-size context block for an LLM caller.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/namespace"
)

// CharsPerToken is the rough character-to-token ratio used to convert
// a token budget into a character budget.
const CharsPerToken = 4

// Heading text per block, in emission order.
const (
	headingSessions  = "## Session Context"
	headingMemories  = "## Relevant Memories"
	headingDecisions = "## Past Decisions"
	headingCloud     = "## Cloud Context"
	headingTerraform = "## Terraform Context"
)

// SessionMessage is one conversational turn from the active session.
type SessionMessage struct {
	Role    string
	Content string
}

// MemoryHit is a scored memory search result.
type MemoryHit struct {
	Content   string
	Relevance float64
}

// DecisionHit is a scored decision search result.
type DecisionHit struct {
	DecisionType string
	Reasoning    string
	Outcome      string
}

// ResourceHit is a cloud resource search result.
type ResourceHit struct {
	ResourceType string
	ResourceID   string
	Region       string
	Source       string
}

// TerraformHit is an IaC document search result.
type TerraformHit struct {
	FilePath string
	Category string
	Content  string
}

// Input carries the per-group results to assemble. Slices left nil
// produce no block.
type Input struct {
	Session   []SessionMessage
	Memories  []MemoryHit
	Decisions []DecisionHit
	Cloud     []ResourceHit
	Terraform []TerraformHit
}

// Result is the assembled context.
type Result struct {
	// Context is the final string: non-empty blocks joined by a blank
	// line, in fixed order (sessions, memories, decisions, cloud,
	// terraform).
	Context string

	// Sources maps source name to its hit count BEFORE any
	// truncation. Empty sources are absent.
	Sources map[string]int
}

// Assembler renders Input into a budgeted context string.
//
// The budget contract: charBudget = maxTokens * CharsPerToken, split
// equally (integer floor) between the included index groups. Each
// block's rendered text is clipped to its group allocation AFTER
// per-line clipping, so the sum of block lengths never exceeds the
// budget. Decisions ride inside the memory group: when present they
// take half its allocation and the memory block keeps the remainder,
// which can push the total under budget but never over.
type Assembler struct {
	logger *zap.Logger
}

// New creates an Assembler.
func New(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// clip returns at most n leading bytes of s, cut back to a rune
// boundary so the result stays valid UTF-8. The rendering templates
// append their own ellipses; clip itself is a hard cut.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Assemble builds the context string from the given per-group results.
//
// includeGroups determines the budget split: every group present gets
// charBudget / len(includeGroups) characters. Groups not included are
// skipped entirely even if Input carries data for them.
func (a *Assembler) Assemble(in Input, includeGroups []namespace.Group, maxTokens int) Result {
	result := Result{Sources: map[string]int{}}

	charBudget := maxTokens * CharsPerToken
	if len(includeGroups) == 0 || charBudget <= 0 {
		return result
	}
	perGroup := charBudget / len(includeGroups)

	included := make(map[namespace.Group]bool, len(includeGroups))
	for _, g := range includeGroups {
		included[g] = true
	}

	var parts []string

	if included[namespace.GroupSessions] && len(in.Session) > 0 {
		block := a.renderSession(in.Session, perGroup)
		if block != "" {
			parts = append(parts, headingSessions+"\n"+block)
			result.Sources["sessions"] = 1
		}
	}

	if included[namespace.GroupMemory] {
		// Decisions share the memory group's allocation: half for
		// decisions, the remainder for memories, so the group as a
		// whole never exceeds perGroup.
		memBudget := perGroup
		decBudget := 0
		if len(in.Decisions) > 0 {
			decBudget = perGroup / 2
			memBudget = perGroup - decBudget
		}
		if len(in.Memories) > 0 {
			block := a.renderMemories(in.Memories, memBudget)
			if block != "" {
				parts = append(parts, headingMemories+"\n"+block)
				result.Sources["memories"] = len(in.Memories)
			}
		}
		if len(in.Decisions) > 0 {
			block := a.renderDecisions(in.Decisions, decBudget)
			if block != "" {
				parts = append(parts, headingDecisions+"\n"+block)
				result.Sources["decisions"] = len(in.Decisions)
			}
		}
	}

	if included[namespace.GroupContext] && len(in.Cloud) > 0 {
		block := a.renderCloud(in.Cloud, perGroup)
		if block != "" {
			parts = append(parts, headingCloud+"\n"+block)
			result.Sources["context"] = len(in.Cloud)
		}
	}

	if included[namespace.GroupTerraform] && len(in.Terraform) > 0 {
		block := a.renderTerraform(in.Terraform, perGroup)
		if block != "" {
			parts = append(parts, headingTerraform+"\n"+block)
			result.Sources["terraform"] = len(in.Terraform)
		}
	}

	result.Context = strings.Join(parts, "\n\n")

	a.logger.Debug("assembled agent context",
		zap.Int("max_tokens", maxTokens),
		zap.Int("char_budget", charBudget),
		zap.Int("blocks", len(parts)),
		zap.Int("context_chars", len(result.Context)),
	)

	return result
}

// renderSession formats the most recent messages, role-prefixed, each
// clipped to 200 content characters before the block clip.
func (a *Assembler) renderSession(messages []SessionMessage, maxChars int) string {
	// Last 10 messages only.
	if len(messages) > 10 {
		messages = messages[len(messages)-10:]
	}
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = fmt.Sprintf("[%s]: %s...", msg.Role, clip(msg.Content, 200))
	}
	return clip(strings.Join(lines, "\n"), maxChars)
}

// renderMemories formats memories with their relevance, content
// clipped to 300 characters per line.
func (a *Assembler) renderMemories(memories []MemoryHit, maxChars int) string {
	lines := make([]string, len(memories))
	for i, m := range memories {
		lines[i] = fmt.Sprintf("- %s... (relevance: %.2f)", clip(m.Content, 300), m.Relevance)
	}
	return clip(strings.Join(lines, "\n"), maxChars)
}

// renderDecisions formats decisions with reasoning clipped to 200 and
// outcome to 100 characters.
func (a *Assembler) renderDecisions(decisions []DecisionHit, maxChars int) string {
	lines := make([]string, len(decisions))
	for i, d := range decisions {
		lines[i] = fmt.Sprintf("- Decision: %s\n  Reasoning: %s...\n  Outcome: %s...",
			d.DecisionType, clip(d.Reasoning, 200), clip(d.Outcome, 100))
	}
	return clip(strings.Join(lines, "\n"), maxChars)
}

// renderCloud formats cloud resources; the fields are short so only
// the block clip applies.
func (a *Assembler) renderCloud(resources []ResourceHit, maxChars int) string {
	lines := make([]string, len(resources))
	for i, r := range resources {
		lines[i] = fmt.Sprintf("- Resource: %s/%s\n  Region: %s\n  Source: %s",
			r.ResourceType, r.ResourceID, r.Region, r.Source)
	}
	return clip(strings.Join(lines, "\n"), maxChars)
}

// renderTerraform formats IaC hits with content clipped to 200
// characters per line.
func (a *Assembler) renderTerraform(hits []TerraformHit, maxChars int) string {
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = fmt.Sprintf("- File: %s\n  Category: %s\n  Content: %s...",
			h.FilePath, h.Category, clip(h.Content, 200))
	}
	return clip(strings.Join(lines, "\n"), maxChars)
}
