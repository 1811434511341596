package validators

import (
	"encoding/binary"
	"encoding/json"
	"regexp"

	"github.com/brojonat/fogoscan/service/solana"
)

// Config record layout: u16 LE key count, then 32-byte keys from offset 2,
// then a trailing JSON object. The second key is the validator identity.
const (
	keyCountSize   = 2
	identityOffset = keyCountSize + solana.IdentitySize
	identityEnd    = identityOffset + solana.IdentitySize
	minKeyCount    = 2
)

var jsonObject = regexp.MustCompile(`\{[^{}]*\}`)

// ConfigEntry is validator display metadata decoded from a config account.
type ConfigEntry struct {
	ConfigPubkey string
	Identity     string
	Name         *string
	IconURL      *string
	Website      *string
	Details      *string
}

type validatorInfo struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
	Website string `json:"website"`
	Details string `json:"details"`
}

// ParseConfigAccount decodes one config account. It returns false for
// records that do not carry validator info.
func ParseConfigAccount(account solana.ProgramAccount) (ConfigEntry, bool) {
	data := account.Data
	if len(data) < identityEnd {
		return ConfigEntry{}, false
	}

	match := jsonObject.Find(data[identityEnd:])
	if match == nil {
		return ConfigEntry{}, false
	}
	var info validatorInfo
	if err := json.Unmarshal(match, &info); err != nil {
		return ConfigEntry{}, false
	}

	if binary.LittleEndian.Uint16(data[:keyCountSize]) < minKeyCount {
		return ConfigEntry{}, false
	}

	identity, _ := solana.DecodeIdentityBytes(data[identityOffset:identityEnd])
	return ConfigEntry{
		ConfigPubkey: account.Pubkey,
		Identity:     identity,
		Name:         optional(info.Name),
		IconURL:      optional(info.IconURL),
		Website:      optional(info.Website),
		Details:      optional(info.Details),
	}, true
}

// ParseConfigAccounts decodes every account, silently skipping malformed ones.
func ParseConfigAccounts(accounts []solana.ProgramAccount) []ConfigEntry {
	entries := make([]ConfigEntry, 0, len(accounts))
	for _, a := range accounts {
		if e, ok := ParseConfigAccount(a); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
