package migration

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/usagipass/migration-tools/internal/datastore/leporid"
	"github.com/usagipass/migration-tools/internal/datastore/usagipass"
	"github.com/usagipass/migration-tools/internal/errors"
)

// AspectID1FF is the ISO 7810 ID-1 full-frame aspect every card image uses
const AspectID1FF = "id-1-ff"

const labelWorkshop = "workshop"

var kindAspects = map[string]string{
	"BACKGROUND": AspectID1FF,
	"FRAME":      AspectID1FF,
	"CHARACTER":  AspectID1FF,
	"MASK":       AspectID1FF,
	"LABEL":      AspectID1FF,
}

var canonicalAspects = map[string]leporid.ImageAspect{
	AspectID1FF: {
		ID:              AspectID1FF,
		Name:            "ISO 7810 ID-1 FF",
		Description:     "ISO 7810 ID-1 全画幅平铺",
		RatioWidthUnit:  768,
		RatioHeightUnit: 1220,
	},
}

// DeriveAspectID maps a legacy image kind to its aspect id, ignoring case
func DeriveAspectID(kind string) (string, error) {
	if aspect, ok := kindAspects[strings.ToUpper(strings.TrimSpace(kind))]; ok {
		return aspect, nil
	}
	return "", errors.ValidationError(fmt.Sprintf("unrecognized image kind %q", kind))
}

// RequiredAspects returns the canonical rows of every aspect some kind maps to, by id
func RequiredAspects() []leporid.ImageAspect {
	ids := make(map[string]struct{}, len(canonicalAspects))
	for _, id := range kindAspects {
		ids[id] = struct{}{}
	}

	aspects := make([]leporid.ImageAspect, 0, len(ids))
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		aspects = append(aspects, canonicalAspects[id])
	}
	return aspects
}

// BuildImageLabels composes tbl_image.labels: the lowercase kind, the
// normalized category and "workshop" for user uploads.
func BuildImageLabels(kind, category string, workshop bool) []string {
	labels := make([]string, 0, 3)
	if kind != "" {
		labels = append(labels, strings.ToLower(kind))
	}
	if c := strings.TrimSpace(category); c != "" {
		labels = append(labels, strings.ToLower(c))
	}
	if workshop {
		labels = append(labels, labelWorkshop)
	}
	return labels
}

// BuildImageName returns the first non-blank candidate, trimmed
func BuildImageName(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// ServerRule describes how accounts of one legacy game server are carried over
type ServerRule struct {
	// Identifier matches user_accounts.account_server and tbl_server.identifier
	Identifier string
	// Prefix is prepended to the account name to form the Leporid username
	Prefix   string
	Strategy int
}

// DerivedUsername is the Leporid username for an account on this server
func (r ServerRule) DerivedUsername(accountName string) string {
	return r.Prefix + accountName
}

var serverRules = map[string]ServerRule{
	usagipass.ServerDivingFish: {Identifier: usagipass.ServerDivingFish, Prefix: "dvfh_", Strategy: leporid.StrategyDivingFish},
	usagipass.ServerLXNS:       {Identifier: usagipass.ServerLXNS, Prefix: "lxns_", Strategy: leporid.StrategyLXNS},
}

// LookupServerRule finds the rule for a server identifier, ignoring case
func LookupServerRule(server string) (ServerRule, bool) {
	rule, ok := serverRules[strings.ToUpper(strings.TrimSpace(server))]
	return rule, ok
}

// RequiredServers lists the tbl_server identifiers merge-up cannot run without
func RequiredServers() []string {
	return []string{usagipass.ServerDivingFish, usagipass.ServerLXNS}
}

// normalizeTime returns t in UTC, or now when t is nil or zero
func normalizeTime(t *time.Time, now time.Time) time.Time {
	if t == nil || t.IsZero() {
		return now.UTC()
	}
	return t.UTC()
}

// firstTime returns the first set timestamp of ts in UTC, or the Unix epoch
// when none is set
func firstTime(ts ...*time.Time) time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}
