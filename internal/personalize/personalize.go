package personalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campaigner/internal/domain"
	"campaigner/internal/observability"
)

// EnhanceMarker in a template explicitly requests generative enhancement.
// Templates shorter than the minimum length are treated the same way: a
// very short template is a placeholder, not finished copy.
const EnhanceMarker = "{{ai}}"

const (
	DefaultMinTemplateLen = 50
	DefaultEnhanceTimeout = 8 * time.Second

	fallbackName = "Friend"
)

type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

type Personalizer struct {
	Enhancer       Enhancer // nil disables enhancement
	MinTemplateLen int
	Timeout        time.Duration
}

// Personalize resolves a template into final text for one recipient. It
// never fails: generative enhancement falls back silently to the literal
// substitution, which must not block sending.
func (p *Personalizer) Personalize(ctx context.Context, template string, r domain.Recipient, campaignName string) string {
	minLen := p.MinTemplateLen
	if minLen <= 0 {
		minLen = DefaultMinTemplateLen
	}

	enhance := strings.Contains(template, EnhanceMarker)
	template = strings.ReplaceAll(template, EnhanceMarker, "")
	if !enhance && len(strings.TrimSpace(template)) < minLen {
		enhance = true
	}

	text := Substitute(template, r)

	if !enhance || p.Enhancer == nil {
		return text
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultEnhanceTimeout
	}
	enhCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enhanced, err := p.Enhancer.Enhance(enhCtx, buildPrompt(text, r, campaignName))
	if err != nil || strings.TrimSpace(enhanced) == "" {
		observability.Enhancements.WithLabelValues("fallback").Inc()
		slog.Warn("enhancement fell back to literal substitution", "recipient_id", r.ID, "err", err)
		return text
	}
	observability.Enhancements.WithLabelValues("ok").Inc()
	return strings.TrimSpace(enhanced)
}

// Substitute performs the literal placeholder pass. Missing recipient
// fields get defaults so no send is blocked on sparse contact data.
func Substitute(template string, r domain.Recipient) string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = fallbackName
	}

	out := template
	out = strings.ReplaceAll(out, "{{name}}", name)
	out = strings.ReplaceAll(out, "{{company}}", r.Company)
	out = strings.ReplaceAll(out, "{{phone}}", r.Phone)
	out = strings.ReplaceAll(out, "{{address}}", r.Phone)
	for k, v := range r.Attributes {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(out)
}

func buildPrompt(draft string, r domain.Recipient, campaignName string) string {
	return fmt.Sprintf(
		"You write outbound customer messages for the campaign %q.\n"+
			"Recipient name: %s. Draft message: %q.\n"+
			"Rewrite the draft as a short, friendly message with a clear call to action. "+
			"Use at most one emoji. Reply with the message text only.",
		campaignName, r.Name, draft)
}
