package llm

import (
	"context"
	"fmt"
	"strings"

	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/ports"
)

// maxSequenceInPrompt keeps very long targets from dominating the token budget.
const maxSequenceInPrompt = 1200

// RationaleAdapter implements ports.RationaleGenerator with an LLM
type RationaleAdapter struct {
	client    ports.LLMClient
	model     string
	maxTokens int
	logger    *internal.Logger
}

// NewRationaleAdapter creates a rationale generator. A nil client yields an adapter
// that always reports the rationale as absent.
func NewRationaleAdapter(client ports.LLMClient, model string, maxTokens int) *RationaleAdapter {
	return &RationaleAdapter{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    internal.DefaultLogger.With("RationaleAdapter"),
	}
}

// Explain asks the LLM why the winning candidate may bind the target
func (a *RationaleAdapter) Explain(ctx context.Context, best screening.ScoredCandidate, target screening.TargetContext) (string, bool) {
	if a == nil || a.client == nil {
		return "", false
	}

	text, err := a.client.ChatCompletion(ctx, a.model, BuildRationalePrompt(best, target), a.maxTokens)
	if err != nil {
		a.logger.Warn("rationale unavailable for %s: %v", best.SMILES, err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		a.logger.Warn("rationale for %s came back empty", best.SMILES)
		return "", false
	}
	return text, true
}

// BuildRationalePrompt renders the winner and target into the rationale prompt
func BuildRationalePrompt(best screening.ScoredCandidate, target screening.TargetContext) string {
	var b strings.Builder
	b.WriteString("A virtual screen ranked the following ligand first against a protein target.\n\n")
	fmt.Fprintf(&b, "Ligand SMILES: %s\n", best.SMILES)
	fmt.Fprintf(&b, "Predicted binding affinity (pKd-like): %.2f\n", best.Affinity)
	fmt.Fprintf(&b, "QED drug-likeness: %.3f\n", best.QED)
	if best.MolecularWeight != nil {
		fmt.Fprintf(&b, "Molecular weight: %.1f Da\n", *best.MolecularWeight)
	}
	if best.LogP != nil {
		fmt.Fprintf(&b, "logP: %.2f\n", *best.LogP)
	}
	fmt.Fprintf(&b, "\nTarget sequence: %s\n", clip(target.FullSequence, maxSequenceInPrompt))
	if target.PocketSequence != "" {
		fmt.Fprintf(&b, "Binding pocket residues: %s\n", clip(target.PocketSequence, maxSequenceInPrompt))
	}
	b.WriteString("\nIn under 150 words, give a plausible structural rationale for the predicted binding, " +
		"name the functional groups likely involved, and one liability worth checking experimentally.")
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
