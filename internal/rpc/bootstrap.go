package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
)

// canonicalBootstrapTrigger is the trigger name every alias normalizes to
// in a response, regardless of which alias the caller invoked.
const canonicalBootstrapTrigger = "flashgrep-init"

// bootstrapToolAliases lists every method name that resolves to the
// bootstrap handshake.
var bootstrapToolAliases = []string{
	"bootstrap_skill",
	"flashgrep-init",
	"fgrep-boot",
	"flashgrep_init",
	"fgrep_boot",
}

func isBootstrapTool(name string) bool {
	for _, alias := range bootstrapToolAliases {
		if alias == name {
			return true
		}
	}
	return false
}

// bootstrapState tracks whether the bootstrap handshake has already run on
// this handler, making re-invocation without force=true a no-op.
type bootstrapState struct {
	injected atomic.Bool
}

type bootstrapParams struct {
	Trigger string `json:"trigger"`
	Force   bool   `json:"force"`
	Compact bool   `json:"compact"`
}

// bootstrapPolicy is the guidance returned to a newly-bootstrapped agent:
// use the structured tools instead of shelling out to grep/cat/sed.
const bootstrapPolicy = "Prefer query for text search, read_code/get_slice for" +
	" targeted reads, write_code for line-range edits, and glob for file" +
	" discovery over raw shell commands. Budgets apply to every read and" +
	" write; expect truncation and follow continuation_start_line."

const bootstrapSkillVersion = "1"

// handleBootstrap implements the bootstrap_skill tool and its aliases: an
// idempotent handshake that hands a newly-connected agent the policy
// governing this RPC surface, per §4.L.
func (h *Handler) handleBootstrap(requestedTool string, rawParams any) (any, *methodResult) {
	var p bootstrapParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	requestedTrigger := p.Trigger
	if requestedTrigger == "" {
		requestedTrigger = requestedTool
	}

	if !isBootstrapTool(requestedTrigger) {
		return map[string]any{
			"ok":                false,
			"error":             "invalid_trigger",
			"requested_trigger": requestedTrigger,
			"allowed":           bootstrapToolAliases,
		}, nil
	}

	if h.bootstrap.injected.Load() && !p.Force {
		return map[string]any{
			"ok":                true,
			"status":            "already_injected",
			"canonical_trigger": canonicalBootstrapTrigger,
			"policy":            bootstrapPolicy,
		}, nil
	}

	h.bootstrap.injected.Store(true)

	hash := sha256.Sum256([]byte(bootstrapPolicy))
	result := map[string]any{
		"ok":                true,
		"status":            "injected",
		"canonical_trigger": canonicalBootstrapTrigger,
		"skill_hash":        hex.EncodeToString(hash[:]),
		"skill_version":     bootstrapSkillVersion,
		"policy":            bootstrapPolicy,
	}
	if !p.Compact {
		result["skill_markdown"] = bootstrapPolicy
	}
	return result, nil
}
