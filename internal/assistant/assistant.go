package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/transcript"
)

var (
	// ErrAskInFlight is returned when a request of the same kind is pending.
	ErrAskInFlight = errors.New("ai request already in flight")
	// ErrEmptyTranscript is returned when an artifact is requested for a
	// session without any final transcript text.
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// Artifact names one of the generated per-session texts.
type Artifact int

const (
	ArtifactSummary Artifact = iota
	ArtifactInsights
	ArtifactQuestions
	artifactCount
)

func (a Artifact) String() string {
	switch a {
	case ArtifactSummary:
		return "summary"
	case ArtifactInsights:
		return "insights"
	case ArtifactQuestions:
		return "questions"
	default:
		return "unknown"
	}
}

// Get returns the cached artifact text stored on s.
func (a Artifact) Get(s session.Session) string {
	switch a {
	case ArtifactSummary:
		return s.Summary
	case ArtifactInsights:
		return s.Insights
	case ArtifactQuestions:
		return s.Questions
	}
	return ""
}

// Set stores text as the artifact on s.
func (a Artifact) Set(s *session.Session, text string) {
	switch a {
	case ArtifactSummary:
		s.Summary = text
	case ArtifactInsights:
		s.Insights = text
	case ArtifactQuestions:
		s.Questions = text
	}
}

func (a Artifact) instruction() string {
	switch a {
	case ArtifactSummary:
		return "Summarize this meeting transcript in a few short paragraphs. Cover decisions and action items."
	case ArtifactInsights:
		return "List the key insights from this meeting transcript as short bullet points."
	default:
		return "List the open questions raised in this meeting transcript that still need an answer, one per line."
	}
}

const defaultSystemPrompt = "You are a meeting assistant. MIC lines are the user, SYS lines are the other participants."

// Assistant gates AI requests so that at most one of each kind is pending.
type Assistant struct {
	ai  Completer
	log zerolog.Logger

	asking     atomic.Bool
	generating [artifactCount]atomic.Bool
}

// New creates an assistant over ai.
func New(ai Completer, log zerolog.Logger) *Assistant {
	return &Assistant{ai: ai, log: log}
}

// Ask sends a free-form question. A second Ask while one is pending is
// rejected with ErrAskInFlight rather than cancelling the first.
func (a *Assistant) Ask(ctx context.Context, question, systemPrompt, model string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question is empty")
	}
	if !a.asking.CompareAndSwap(false, true) {
		return "", ErrAskInFlight
	}
	defer a.asking.Store(false)

	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	answer, err := a.ai.Complete(ctx, systemPrompt, question, model)
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}
	return answer, nil
}

// Generate returns the artifact for s. A cached value is reused unless
// regenerate is set. The caller stores the result on the session.
func (a *Assistant) Generate(ctx context.Context, kind Artifact, s session.Session, regenerate bool) (string, error) {
	if cached := kind.Get(s); cached != "" && !regenerate {
		return cached, nil
	}
	text := TranscriptText(s.Bubbles)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	gate := &a.generating[kind]
	if !gate.CompareAndSwap(false, true) {
		return "", ErrAskInFlight
	}
	defer gate.Store(false)

	out, err := a.ai.Complete(ctx, defaultSystemPrompt, kind.instruction()+"\n\n"+text, "")
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}
	a.log.Debug().Str("session_id", s.ID).Stringer("artifact", kind).Int("chars", len(out)).Msg("artifact generated")
	return out, nil
}

// TranscriptText renders the final bubbles as "MIC: text" lines.
func TranscriptText(bubbles []transcript.Bubble) string {
	var b strings.Builder
	for _, bub := range bubbles {
		if bub.IsDraft || strings.TrimSpace(bub.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", bub.Source.Label(), bub.Text)
	}
	return strings.TrimSpace(b.String())
}
