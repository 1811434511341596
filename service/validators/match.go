package validators

import (
	"strings"

	"github.com/brojonat/fogoscan/service/solana"
)

// PrefixRule maps an address prefix to the config name a validator publishes
// under when its config identity differs from its node identity.
type PrefixRule struct {
	Prefix string
	Name   string
}

// PrefixRules are tried in order; the first match wins.
var PrefixRules = []PrefixRule{
	{Prefix: "Fogee", Name: "Fogees Hub"},
	{Prefix: "H1KAR", Name: "Hikari"},
	{Prefix: "xL", Name: "xLabs"},
	{Prefix: "ARi", Name: "Asymmetric Research"},
	{Prefix: "FLX", Name: "Kairos Research X Firstset"},
	{Prefix: "FLV", Name: "Kairos Research X Firstset"},
}

// Match sources reported in metrics.
const (
	MatchIdentity = "identity"
	MatchPrefix   = "prefix"
	MatchNone     = "none"
)

// Validator is a vote account with its activity flag.
type Validator struct {
	solana.VoteAccount
	Active bool
}

// EnrichedValidator is a validator with its display metadata.
type EnrichedValidator struct {
	VotePubkey     string     `json:"votePubkey"`
	NodePubkey     string     `json:"nodePubkey"`
	ActivatedStake uint64     `json:"activatedStake"`
	Commission     uint8      `json:"commission"`
	LastVote       uint64     `json:"lastVote"`
	RootSlot       uint64     `json:"rootSlot"`
	EpochCredits   [][]uint64 `json:"epochCredits"`
	Active         bool       `json:"active"`
	Name           *string    `json:"name"`
	IconURL        *string    `json:"iconUrl"`
	Website        *string    `json:"website"`
	Details        *string    `json:"details"`
}

// Index holds config entries keyed for lookup.
type Index struct {
	byIdentity map[string]ConfigEntry
	byName     map[string]ConfigEntry
}

// NewIndex builds the lookup maps. A later entry replaces an earlier one with
// the same identity; the first entry with a given name is kept.
func NewIndex(entries []ConfigEntry) *Index {
	idx := &Index{
		byIdentity: make(map[string]ConfigEntry, len(entries)),
		byName:     make(map[string]ConfigEntry, len(entries)),
	}
	for _, e := range entries {
		if e.Name != nil {
			if _, ok := idx.byName[*e.Name]; !ok {
				idx.byName[*e.Name] = e
			}
		}
	}
	for _, e := range entries {
		idx.byIdentity[e.Identity] = e
	}
	return idx
}

// Lookup finds the metadata for a validator and reports how it matched.
func (idx *Index) Lookup(nodePubkey, votePubkey string) (ConfigEntry, string) {
	if e, ok := idx.byIdentity[nodePubkey]; ok {
		return e, MatchIdentity
	}
	for _, rule := range PrefixRules {
		if strings.HasPrefix(nodePubkey, rule.Prefix) || strings.HasPrefix(votePubkey, rule.Prefix) {
			if e, ok := idx.byName[rule.Name]; ok {
				return e, MatchPrefix
			}
			return ConfigEntry{}, MatchNone
		}
	}
	return ConfigEntry{}, MatchNone
}

// Match enriches every validator, in input order. The returned counts are
// keyed by match source.
func Match(validators []Validator, entries []ConfigEntry) ([]EnrichedValidator, map[string]int) {
	idx := NewIndex(entries)
	counts := map[string]int{MatchIdentity: 0, MatchPrefix: 0, MatchNone: 0}

	out := make([]EnrichedValidator, 0, len(validators))
	for _, v := range validators {
		meta, how := idx.Lookup(v.NodePubkey, v.VotePubkey)
		counts[how]++
		out = append(out, EnrichedValidator{
			VotePubkey:     v.VotePubkey,
			NodePubkey:     v.NodePubkey,
			ActivatedStake: v.ActivatedStake,
			Commission:     v.Commission,
			LastVote:       v.LastVote,
			RootSlot:       v.RootSlot,
			EpochCredits:   v.EpochCredits,
			Active:         v.Active,
			Name:           meta.Name,
			IconURL:        meta.IconURL,
			Website:        meta.Website,
			Details:        meta.Details,
		})
	}
	return out, counts
}
