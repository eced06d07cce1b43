package memory

import "github.com/nexora-ai/agentcore/pkg/models"

// EstimateTokens is a deterministic, monotone token estimator using a
// 4-characters-per-token heuristic. Concatenating two strings never
// estimates lower than the sum of their individual estimates minus the
// rounding constant (1).
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	const charsPerToken = 4
	n := len(s) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

func messageTokens(m models.Message) int {
	return EstimateTokens(m.Content)
}

// truncateToBudget applies the token-budget policy to a chronologically
// ordered slice of messages: walking from the newest message backward,
// messages are kept until adding the next one would exceed maxTokens; the
// newest message is always kept, even when it alone exceeds the budget. The
// first message is never dropped when its role is system, even if keeping
// it would exceed the budget.
func truncateToBudget(messages []models.Message, maxTokens int) []models.Message {
	if maxTokens <= 0 || len(messages) == 0 {
		return messages
	}

	var leadingSystem *models.Message
	rest := messages
	if messages[0].Role == models.RoleSystem {
		leadingSystem = &messages[0]
		rest = messages[1:]
	}

	budget := maxTokens
	if leadingSystem != nil {
		budget -= messageTokens(*leadingSystem)
	}

	kept := make([]models.Message, 0, len(rest))
	used := 0
	for i := len(rest) - 1; i >= 0; i-- {
		cost := messageTokens(rest[i])
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, rest[i])
		used += cost
	}
	// kept was built newest-first; reverse to chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	if leadingSystem == nil {
		return kept
	}
	out := make([]models.Message, 0, len(kept)+1)
	out = append(out, *leadingSystem)
	out = append(out, kept...)
	return out
}
