// Package router maps local bus topics to upstream topics.
package router

import (
	"log/slog"
	"strings"
)

type Rule string

const (
	RuleAlias       Rule = "alias"
	RulePrefix      Rule = "prefix"
	RulePassThrough Rule = "pass-through"
)

// Router resolves one outbound topic per inbound topic. Rules are
// checked in order: exact alias, prefix rewrite, then pass-through.
type Router struct {
	aliases   map[string]string
	inPrefix  string
	outPrefix string
	logger    *slog.Logger
}

func NewRouter(aliases map[string]string, inPrefix, outPrefix string, logger *slog.Logger) *Router {
	copied := make(map[string]string, len(aliases))
	for k, v := range aliases {
		copied[k] = v
	}
	return &Router{
		aliases:   copied,
		inPrefix:  inPrefix,
		outPrefix: outPrefix,
		logger:    logger.With("component", "router"),
	}
}

// Route returns the outbound topic for inbound and false when the
// message should be dropped. With the pass-through fallback every
// non-empty topic resolves.
func (r *Router) Route(inbound string) (string, bool) {
	out, _, ok := r.Resolve(inbound)
	return out, ok
}

// Resolve is Route plus the rule that matched.
func (r *Router) Resolve(inbound string) (string, Rule, bool) {
	if inbound == "" {
		return "", "", false
	}

	if out, ok := r.aliases[inbound]; ok {
		return out, RuleAlias, true
	}

	if r.inPrefix != "" && strings.HasPrefix(inbound, r.inPrefix) {
		return r.outPrefix + strings.TrimPrefix(inbound, r.inPrefix), RulePrefix, true
	}

	r.logger.Info("forwarding unmapped topic unchanged", "topic", inbound)
	return inbound, RulePassThrough, true
}
