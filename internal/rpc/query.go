package rpc

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/singleflight"

	"github.com/flashgrep/flashgrep/internal/query"
)

// queryParams is the wire shape of a `query` request, per §4.K's Input
// section.
type queryParams struct {
	Text          string   `json:"text"`
	Limit         int      `json:"limit"`
	Mode          string   `json:"mode"`
	CaseSensitive bool     `json:"case_sensitive"`
	Include       []string `json:"include"`
	Exclude       []string `json:"exclude"`
	Context       int      `json:"context"`
	Offset        int      `json:"offset"`
	RegexFlags    string   `json:"regex_flags"`
}

func (h *Handler) handleQuery(ctx context.Context, rawParams any) (any, *methodResult) {
	var p queryParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Limit == 0 {
		p.Limit = 10
	}

	opts := query.Options{
		Text:          p.Text,
		Limit:         p.Limit,
		Mode:          query.Mode(p.Mode),
		CaseSensitive: p.CaseSensitive,
		Include:       p.Include,
		Exclude:       p.Exclude,
		Context:       p.Context,
		Offset:        p.Offset,
		RegexFlags:    p.RegexFlags,
	}

	key, err := json.Marshal(opts)
	if err != nil {
		return nil, invalidParams(err)
	}

	v, err, _ := h.queryGroup.Do(string(key), func() (any, error) {
		return h.planner.Run(ctx, opts)
	})
	if err != nil {
		return nil, configError(err)
	}
	return v, nil
}
