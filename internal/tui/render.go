package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// Renderer turns conversation messages into terminal text.
type Renderer struct {
	markdown    bool
	showMetrics bool
	style       string
	width       int
	md          *glamour.TermRenderer
}

// NewRenderer returns a renderer. style is a glamour standard style name;
// "auto" picks one from the terminal background.
func NewRenderer(markdown, showMetrics bool, style string) *Renderer {
	if style == "" {
		style = "auto"
	}
	return &Renderer{markdown: markdown, showMetrics: showMetrics, style: style, width: 80}
}

// SetWidth changes the wrap width; the markdown renderer is rebuilt lazily.
func (r *Renderer) SetWidth(w int) {
	if w < 20 {
		w = 20
	}
	if w != r.width {
		r.width = w
		r.md = nil
	}
}

func (r *Renderer) markdownRenderer() *glamour.TermRenderer {
	if r.md != nil {
		return r.md
	}
	styleOpt := glamour.WithStandardStyle(r.style)
	if r.style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.width-4))
	if err != nil {
		return nil
	}
	r.md = md
	return md
}

// Body renders message content. AI replies go through markdown when enabled;
// an open message is shown raw so half-written markup does not flicker.
func (r *Renderer) Body(m domain.ConversationMessage, open bool) string {
	if r.markdown && m.Role == domain.RoleAI && !open {
		if md := r.markdownRenderer(); md != nil {
			if out, err := md.Render(m.Content); err == nil {
				return strings.TrimRight(out, "\n")
			}
		}
	}
	return m.Content
}

// Messages renders the whole sequence.
func (r *Renderer) Messages(msgs []domain.ConversationMessage, openID string) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet. Ask your agent a question.")
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label := humanLabel.Render("You")
		if m.Role == domain.RoleAI {
			label = aiLabel.Render("Agent")
		}
		sb.WriteString(label)
		if !m.Timestamp.IsZero() {
			sb.WriteString(" " + mutedStyle.Render(m.Timestamp.Local().Format("15:04")))
		}
		sb.WriteString("\n")
		sb.WriteString(r.Body(m, m.ID == openID))
		if r.showMetrics && m.Role == domain.RoleAI {
			if line := MetricsLine(m); line != "" {
				sb.WriteString("\n" + metricsStyle.Render(line))
			}
		}
	}
	return sb.String()
}

// MetricsLine summarizes response time, tokens and tools of an AI reply.
// It is empty when the reply carries no metrics.
func MetricsLine(m domain.ConversationMessage) string {
	if !m.HasMetrics() {
		return ""
	}
	var parts []string
	if m.ResponseTimeSeconds != nil {
		parts = append(parts, fmt.Sprintf("%.2fs", *m.ResponseTimeSeconds))
	}
	if u := m.TokenUsage; u != nil {
		parts = append(parts, fmt.Sprintf("tokens %d prompt / %d completion / %d total",
			u.PromptTokens, u.CompletionTokens, u.TotalTokens))
	}
	if len(m.ToolCalls) > 0 {
		names := make([]string, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			names[i] = domain.ToolDisplayName(tc.Name)
		}
		parts = append(parts, "tools: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " | ")
}
