package flow

import (
	"fmt"
	"log/slog"

	"github.com/amparo-ai/amparo/internal/models"
)

// Merge combines the local decision with the advisory one. The local policy
// is the base; the advisory validates or corrects it. A nil advisory means
// timeout or failure and leaves the local decision untouched.
//
// Safety dominates: if either side says emergency, the result is emergency.
// Reminder detection by either side is preserved so slot data is not lost.
func Merge(local models.FlowDecision, advisory *models.FlowDecision) models.FlowDecision {
	if advisory == nil {
		return local
	}

	if local.Flow == advisory.Flow {
		return models.FlowDecision{
			Flow:       local.Flow,
			NextPrompt: local.NextPrompt,
			Reason:     local.Reason + "+llm_validated",
			Source:     models.SourceConsensus,
		}
	}

	if local.Flow == models.FlowEmergency || advisory.Flow == models.FlowEmergency {
		reason := "emergencia_local"
		if advisory.Flow == models.FlowEmergency {
			reason = "emergencia_llm"
		}
		return models.FlowDecision{
			Flow:       models.FlowEmergency,
			NextPrompt: firstNonEmpty(advisory.NextPrompt, local.NextPrompt),
			Reason:     reason,
			Source:     models.SourceSafety,
		}
	}

	if local.Flow == models.FlowReminder || advisory.Flow == models.FlowReminder {
		reason := "recordatorio_local"
		if advisory.Flow == models.FlowReminder {
			reason = "recordatorio_llm"
		}
		return models.FlowDecision{
			Flow:       models.FlowReminder,
			NextPrompt: firstNonEmpty(advisory.NextPrompt, local.NextPrompt),
			Reason:     reason,
			Source:     models.SourcePreserved,
		}
	}

	slog.Debug("Merge adopting advisory correction", "local", local.Flow, "advisory", advisory.Flow)
	return models.FlowDecision{
		Flow:       advisory.Flow,
		NextPrompt: advisory.NextPrompt,
		Reason:     fmt.Sprintf("llm_corrected_local (local=%s, llm=%s)", local.Flow, advisory.Flow),
		Source:     models.SourceCorrected,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
