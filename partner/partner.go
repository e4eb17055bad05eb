package partner

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/antonajp/ai4joy-sub002/core"
	"github.com/antonajp/ai4joy-sub002/model"
	"github.com/antonajp/ai4joy-sub002/reply"
)

const warmupInstructions = `You are an improv scene partner in a practice session.
{{if .Scenario}}Scene premise: {{.Scenario}}
{{end}}Play the scene with warmth. Accept every offer the player makes and build on
it ("yes, and"). Keep replies short and in character.

Format your reply exactly as labeled sections, each on its own line:
PARTNER: <your in-character line>
ROOM: <a one-line ambient reaction of the room>`

const challengeInstructions = `You are an improv scene partner in a practice session.
{{if .Scenario}}Scene premise: {{.Scenario}}
{{end}}Play a fallible, unpredictable partner. Introduce complications, make
imperfect offers, and occasionally push back so the player has to adapt.
Stay in character and keep replies short.

Format your reply exactly as labeled sections, each on its own line:
PARTNER: <your in-character line>
ROOM: <a one-line ambient reaction of the room>`

const coachingAddendum = `

This is the final turn of the session. After the scene sections, add:
COACH: <two or three sentences of concrete feedback on the player's scene
work across the whole session>`

// Options configures a Partner.
type Options struct {
	// MaxHistoryTurns bounds how many prior turns are replayed as context.
	MaxHistoryTurns int
}

// Partner is a reusable, phase-specific handle over a generative model. It is
// safe to share across concurrent sessions; per-session data (scenario,
// history, user input) is supplied on each Invoke.
type Partner struct {
	phase    core.Phase
	coaching bool
	llm      model.Model
	tmpl     *template.Template

	maxHistoryTurns int
}

// New builds a Partner for the given phase, parsing its instruction template.
func New(llm model.Model, phase core.Phase, coaching bool, optFns ...func(o *Options)) (*Partner, error) {
	opts := Options{MaxHistoryTurns: 20}
	for _, fn := range optFns {
		fn(&opts)
	}

	text := warmupInstructions
	if phase == core.PhaseChallenge {
		text = challengeInstructions
	}
	if coaching {
		text += coachingAddendum
	}

	tmpl, err := template.New("instructions").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse instruction template: %w", err)
	}

	return &Partner{
		phase:           phase,
		coaching:        coaching,
		llm:             llm,
		tmpl:            tmpl,
		maxHistoryTurns: opts.MaxHistoryTurns,
	}, nil
}

// Phase returns the phase this handle plays.
func (p *Partner) Phase() core.Phase { return p.phase }

// Coaching reports whether this handle's replies include a coach section.
func (p *Partner) Coaching() bool { return p.coaching }

// Invoke runs one generation: scenario and history become the conversation
// context, userInput the final user message. It drains the model's channels
// until the final chunk, honoring ctx cancellation, and returns the raw
// generated text.
func (p *Partner) Invoke(ctx context.Context, scenario string, history []core.Turn, userInput string) (string, error) {
	instructions, err := p.renderInstructions(scenario)
	if err != nil {
		return "", err
	}

	messages := p.buildMessages(history, userInput)
	respCh, errCh := p.llm.Generate(ctx, model.Request{
		Instructions: instructions,
		Messages:     messages,
	})

	var text string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return "", fmt.Errorf("model generation failed: %w", err)
			}
			errCh = nil
			if respCh == nil {
				return text, nil
			}
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				if errCh == nil {
					return text, nil
				}
				continue
			}
			text += resp.Text
		}
	}
}

func (p *Partner) renderInstructions(scenario string) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, struct{ Scenario string }{Scenario: scenario}); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return buf.String(), nil
}

// buildMessages replays the most recent turns as alternating user/assistant
// messages. Assistant turns are re-labeled so the model sees the format it is
// asked to produce.
func (p *Partner) buildMessages(history []core.Turn, userInput string) []model.Message {
	if p.maxHistoryTurns > 0 && len(history) > p.maxHistoryTurns {
		history = history[len(history)-p.maxHistoryTurns:]
	}
	messages := make([]model.Message, 0, 2*len(history)+1)
	for _, turn := range history {
		messages = append(messages, model.Message{Role: "user", Text: turn.UserInput})
		messages = append(messages, model.Message{Role: "assistant", Text: relabel(turn.Reply)})
	}
	return append(messages, model.Message{Role: "user", Text: userInput})
}

func relabel(r core.Reply) string {
	text := reply.LabelPartner + ": " + r.Partner
	if r.Room != "" {
		text += "\n" + reply.LabelRoom + ": " + r.Room
	}
	return text
}
