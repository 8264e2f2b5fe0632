package handlers

import (
	"net/http"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/agentdef"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
)

// textModes is the only content mode agents exchange.
var textModes = []string{"text"}

// NewAgentCard builds the discovery document for def served at url.
func NewAgentCard(def *agentdef.Definition, url string) a2a.AgentCard {
	skills := make([]a2a.AgentSkill, 0, len(def.A2A.Skills))
	for _, skill := range def.A2A.Skills {
		name := skill.Name
		if name == "" {
			name = skill.ID
		}
		skills = append(skills, a2a.AgentSkill{
			ID:          skill.ID,
			Name:        name,
			Description: skill.Description,
			Tags:        append([]string{}, def.Metadata.Tags...),
		})
	}

	return a2a.AgentCard{
		Name:               def.Title(),
		Description:        def.Metadata.Description,
		URL:                url,
		Version:            def.Metadata.Version,
		Skills:             skills,
		Capabilities:       a2a.Capabilities{Streaming: def.A2A.Capabilities.Streaming},
		DefaultInputModes:  textModes,
		DefaultOutputModes: textModes,
	}
}

// AgentCardHandler serves a fixed card.
func AgentCardHandler(card a2a.AgentCard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if card.Name == "" {
			apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("agent card not configured"))
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}
