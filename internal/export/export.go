// Package export renders a session's turn log as documents: a markdown
// transcript for download and a spoken digest for synthesis.
package export

import (
	"fmt"
	"strings"
	"time"

	"voicestack.local/voicegate/internal/store"
)

const spokenTimeLayout = "January 2 at 3:04 PM"

// Markdown renders the ordered turn log as a transcript document.
func Markdown(sessionID string, turns []store.TurnRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sessionID)
	if len(turns) == 0 {
		b.WriteString("_No turns recorded._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d turns, %s to %s.\n\n",
		len(turns),
		turns[0].CreatedAt.UTC().Format(time.RFC3339),
		turns[len(turns)-1].CreatedAt.UTC().Format(time.RFC3339),
	)

	for i, turn := range turns {
		fmt.Fprintf(&b, "## %d. %s — %s\n\n", i+1, turn.AgentID, turn.CreatedAt.UTC().Format(time.RFC3339))
		if strings.TrimSpace(turn.Input) != "" {
			fmt.Fprintf(&b, "**Input:** %s\n\n", turn.Input)
		}
		switch turn.Status {
		case store.TurnStatusCompleted:
			fmt.Fprintf(&b, "%s\n\n", turn.Output)
		case store.TurnStatusFailed:
			fmt.Fprintf(&b, "_Failed: %s_\n\n", turn.ErrorKind)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// SpokenDigest builds the text a synthesizer reads aloud for a session.
// agentFilter, when non-empty, keeps only that agent's turns. Failed turns
// are skipped; a digest of errors read aloud helps nobody.
func SpokenDigest(sessionID string, turns []store.TurnRecord, agentFilter string) string {
	if len(turns) == 0 {
		return fmt.Sprintf("No logs found for topic %s", sessionID)
	}

	filter := strings.ToLower(strings.TrimSpace(agentFilter))
	kept := make([]store.TurnRecord, 0, len(turns))
	for _, turn := range turns {
		if turn.Status != store.TurnStatusCompleted {
			continue
		}
		if filter != "" && strings.ToLower(turn.AgentID) != filter {
			continue
		}
		kept = append(kept, turn)
	}
	if len(kept) == 0 {
		if filter != "" {
			return fmt.Sprintf("No logs found for agent %s in topic %s", agentFilter, sessionID)
		}
		return fmt.Sprintf("No logs found for topic %s", sessionID)
	}

	parts := make([]string, 0, len(kept)+1)
	parts = append(parts, fmt.Sprintf("Reading logs for topic %s.", sessionID))
	for i, turn := range kept {
		parts = append(parts, fmt.Sprintf("Log %d. Agent %s on %s said: %s",
			i+1, turn.AgentID, turn.CreatedAt.UTC().Format(spokenTimeLayout), turn.Output))
	}
	return strings.Join(parts, " ")
}
