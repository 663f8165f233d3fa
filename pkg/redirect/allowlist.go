package redirect

import (
	"strconv"
	"strings"

	"authbridge/pkg/metrics"
	"authbridge/pkg/satellites"
)

// Matching modes for satellite hostnames that are not an exact match.
const (
	// ModeContains accepts a host that contains an enabled satellite hostname
	// anywhere in it. "sat1.example.com.attacker.net" passes; this is the
	// weaker legacy rule and a known hardening candidate.
	ModeContains = "contains"
	// ModeSubdomain accepts a host that is a subdomain of an enabled
	// satellite hostname on a label boundary.
	ModeSubdomain = "subdomain"
)

// Rules reported in a Decision.
const (
	RuleRelative  = "relative"
	RulePrimary   = "primary"
	RuleSatellite = "satellite"
	RuleExtraHost = "extra_host"
	RuleContains  = "contains"
	RuleSubdomain = "subdomain"
	RuleRejected  = "rejected"
)

// AllowList gates the final sign-out redirect.
type AllowList struct {
	PrimaryHost string
	ExtraHosts  []string
	Mode        string
}

// Decision is the outcome of Check; Rule names the rule that decided.
type Decision struct {
	Allowed bool
	Rule    string
	Host    string
	Err     error
}

func (a AllowList) IsAllowedRedirect(snap *satellites.Snapshot, raw string) bool {
	return a.Check(snap, raw).Allowed
}

// Check evaluates raw. Relative strings are allowed; absolute ones must hit
// the primary host, an extra host, an enabled satellite, or the mode's
// looser satellite rule. Parse failures are rejected.
func (a AllowList) Check(snap *satellites.Snapshot, raw string) Decision {
	d := a.check(snap, raw)
	metrics.AllowListDecisions.WithLabelValues(strconv.FormatBool(d.Allowed), d.Rule).Inc()
	return d
}

func (a AllowList) check(snap *satellites.Snapshot, raw string) Decision {
	_, u, err := parse(raw)
	if err != nil {
		return Decision{Rule: RuleRejected, Err: err}
	}
	if u == nil {
		return Decision{Allowed: true, Rule: RuleRelative}
	}
	host := strings.ToLower(u.Hostname())
	d := Decision{Host: host}

	if host == strings.ToLower(a.PrimaryHost) {
		d.Allowed, d.Rule = true, RulePrimary
		return d
	}
	for _, h := range a.ExtraHosts {
		if strings.EqualFold(h, host) {
			d.Allowed, d.Rule = true, RuleExtraHost
			return d
		}
	}
	if _, ok := snap.ResolveByHostname(host); ok {
		d.Allowed, d.Rule = true, RuleSatellite
		return d
	}
	for _, sat := range snap.Hostnames() {
		switch a.Mode {
		case ModeSubdomain:
			if strings.HasSuffix(host, "."+sat) {
				d.Allowed, d.Rule = true, RuleSubdomain
				return d
			}
		default:
			if sat != "" && strings.Contains(host, sat) {
				d.Allowed, d.Rule = true, RuleContains
				return d
			}
		}
	}
	d.Rule = RuleRejected
	d.Err = ErrUnregisteredHost
	return d
}
