package preflight

import (
	"context"
	"strings"

	"newsboy/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every check for cfg. Network checks only run for
// collaborators that are configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDatabase(ctx, cfg),
	}

	if cfg.LLMEnabled() {
		results = append(results, CheckLLM(ctx, "OpenRouter", cfg.GetLLM()))
	} else {
		results = append(results, Result{Name: "OpenRouter", Passed: true, Detail: "no api key; template briefings and no tuning"})
	}

	switch {
	case !cfg.Illustration.Enabled:
		results = append(results, Result{Name: "Replicate", Passed: true, Detail: "Disabled"})
	case strings.TrimSpace(cfg.Illustration.APIToken) == "":
		results = append(results, Result{Name: "Replicate", Detail: "enabled but api token missing"})
	default:
		results = append(results, CheckReplicate(ctx, cfg.Illustration.BaseURL, cfg.Illustration.APIToken))
	}

	if cfg.Cache.Enabled {
		results = append(results, CheckRedis(ctx, cfg.Cache))
	} else {
		results = append(results, Result{Name: "Redis", Passed: true, Detail: "Disabled"})
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
