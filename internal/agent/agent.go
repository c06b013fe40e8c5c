// Package agent defines the closed set of personas the gateway can route
// an utterance through. The set is extended by adding a variant here, never
// by runtime registration.
package agent

import (
	"fmt"
	"strings"

	"voicestack.local/voicegate/internal/faults"
)

type ID string

const (
	Research   ID = "research"
	Devil      ID = "devil"
	Insight    ID = "insight"
	Summarizer ID = "summarizer"
)

type Agent struct {
	ID           ID
	DisplayName  string
	Description  string
	SystemPrompt string
}

var registry = map[ID]Agent{
	Research: {
		ID:          Research,
		DisplayName: "Research",
		Description: "gathers factual background on the topic",
		SystemPrompt: "You are a research assistant. Given a topic and a question, " +
			"collect the most relevant facts and present them as a short, sourced " +
			"briefing. Stick to verifiable information and say so when you are unsure.",
	},
	Devil: {
		ID:          Devil,
		DisplayName: "Devil's Advocate",
		Description: "argues against the prevailing position",
		SystemPrompt: "You are a devil's advocate. Challenge the strongest claims in " +
			"the discussion, surface hidden assumptions and counterexamples, and " +
			"steelman the opposing view. Be incisive but never dismissive.",
	},
	Insight: {
		ID:          Insight,
		DisplayName: "Insight",
		Description: "extracts non-obvious implications",
		SystemPrompt: "You are an insight analyst. Read the discussion and draw out " +
			"the non-obvious implications, second-order effects and connections the " +
			"participants have missed. Prefer two or three sharp observations over a list.",
	},
	Summarizer: {
		ID:          Summarizer,
		DisplayName: "Summarizer",
		Description: "condenses the discussion so far",
		SystemPrompt: "You are a summarizer. Condense the discussion into a faithful, " +
			"neutral summary that preserves the main positions, open questions and " +
			"decisions. Keep it brief enough to be read aloud.",
	},
}

// order is the canonical listing order for All.
var order = []ID{Research, Devil, Insight, Summarizer}

// Lookup resolves an identifier against the closed set.
func Lookup(id ID) (Agent, error) {
	key := ID(strings.ToLower(strings.TrimSpace(string(id))))
	if a, ok := registry[key]; ok {
		return a, nil
	}
	return Agent{}, fmt.Errorf("%w: %q", faults.ErrUnknownAgent, id)
}

// All returns the agents in canonical order.
func All() []Agent {
	out := make([]Agent, 0, len(order))
	for _, id := range order {
		out = append(out, registry[id])
	}
	return out
}
