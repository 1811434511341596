package validators

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/solana"
)

func identityBytes(fill byte) [solana.IdentitySize]byte {
	var b [solana.IdentitySize]byte
	for i := range b {
		b[i] = fill
	}
	return b
}

// configRecord builds a config account with the given key count, an identity
// as the second key, and info appended after a one-byte signer flag.
func configRecord(count uint16, identity [solana.IdentitySize]byte, info string) []byte {
	data := make([]byte, 2, identityEnd+1+len(info))
	binary.LittleEndian.PutUint16(data, count)
	data = append(data, make([]byte, solana.IdentitySize)...)
	data = append(data, identity[:]...)
	data = append(data, 0x01)
	return append(data, info...)
}

func TestParseConfigAccount(t *testing.T) {
	id := identityBytes(7)
	acct := solana.ProgramAccount{
		Pubkey: "cfg1",
		Data:   configRecord(2, id, `xx{"name":"Alpha","iconUrl":"","website":"https://alpha.example","details":"Alpha validator"}`),
	}

	entry, ok := ParseConfigAccount(acct)
	require.True(t, ok)
	assert.Equal(t, "cfg1", entry.ConfigPubkey)
	assert.Equal(t, solana.DecodeIdentity(id), entry.Identity)
	require.NotNil(t, entry.Name)
	assert.Equal(t, "Alpha", *entry.Name)
	assert.Nil(t, entry.IconURL)
	require.NotNil(t, entry.Website)
	assert.Equal(t, "https://alpha.example", *entry.Website)
	require.NotNil(t, entry.Details)
}

func TestParseConfigAccount_Skips(t *testing.T) {
	id := identityBytes(3)
	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte{2, 0, 1, 2, 3}},
		{name: "single key", data: configRecord(1, id, `{"name":"Solo"}`)},
		{name: "no json", data: configRecord(2, id, "no object here")},
		{name: "bad json", data: configRecord(2, id, `{name:Alpha}`)},
		{name: "json only in key area", data: append([]byte{2, 0, '{', '}'}, make([]byte, 2*solana.IdentitySize)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseConfigAccount(solana.ProgramAccount{Pubkey: "x", Data: tt.data})
			assert.False(t, ok)
		})
	}
}

func TestParseConfigAccounts_SkipsMalformed(t *testing.T) {
	entries := ParseConfigAccounts([]solana.ProgramAccount{
		{Pubkey: "a", Data: configRecord(2, identityBytes(1), `{"name":"A"}`)},
		{Pubkey: "b", Data: []byte{0}},
		{Pubkey: "c", Data: configRecord(2, identityBytes(2), `{"name":"C"}`)},
	})
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ConfigPubkey)
	assert.Equal(t, "c", entries[1].ConfigPubkey)
}

func strptr(s string) *string { return &s }

func TestIndex_LookupOrder(t *testing.T) {
	entries := []ConfigEntry{
		{ConfigPubkey: "c1", Identity: "NodeA", Name: strptr("First")},
		{ConfigPubkey: "c2", Identity: "NodeA", Name: strptr("Second")},
		{ConfigPubkey: "c3", Identity: "Other1", Name: strptr("xLabs")},
		{ConfigPubkey: "c4", Identity: "Other2", Name: strptr("xLabs")},
		{ConfigPubkey: "c5", Identity: "Other3", Name: strptr("Kairos Research X Firstset")},
	}
	idx := NewIndex(entries)

	e, how := idx.Lookup("NodeA", "VoteA")
	assert.Equal(t, MatchIdentity, how)
	assert.Equal(t, "c2", e.ConfigPubkey, "identity index keeps the last entry")

	e, how = idx.Lookup("xLnode", "VoteB")
	assert.Equal(t, MatchPrefix, how)
	assert.Equal(t, "c3", e.ConfigPubkey, "name index keeps the first entry")

	e, how = idx.Lookup("NodeC", "FLVvote")
	assert.Equal(t, MatchPrefix, how, "prefix rules also apply to the vote address")
	assert.Equal(t, "c5", e.ConfigPubkey)

	_, how = idx.Lookup("H1KARnode", "VoteD")
	assert.Equal(t, MatchNone, how, "rule matched but no config entry with that name")

	_, how = idx.Lookup("Unknown", "Unknown")
	assert.Equal(t, MatchNone, how)
}

func TestIndex_FirstMatchingRuleWins(t *testing.T) {
	idx := NewIndex([]ConfigEntry{
		{Identity: "i1", Name: strptr("Fogees Hub")},
		{Identity: "i2", Name: strptr("xLabs")},
	})
	// node matches Fogee, vote matches xL; Fogee is earlier in the rule list.
	e, how := idx.Lookup("FogeeNode", "xLvote")
	assert.Equal(t, MatchPrefix, how)
	assert.Equal(t, "i1", e.Identity)
}

type fakeSource struct {
	votes    *solana.VoteAccounts
	accounts []solana.ProgramAccount
	err      error
}

func (f *fakeSource) GetVoteAccounts(ctx context.Context) (*solana.VoteAccounts, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.votes, nil
}

func (f *fakeSource) GetConfigAccounts(ctx context.Context) ([]solana.ProgramAccount, error) {
	return f.accounts, nil
}

func TestService_List(t *testing.T) {
	id := identityBytes(9)
	node := solana.DecodeIdentity(id)
	src := &fakeSource{
		votes: &solana.VoteAccounts{
			Current: []solana.VoteAccount{
				{VotePubkey: "V1", NodePubkey: node, ActivatedStake: 100, Commission: 5},
				{VotePubkey: "V2", NodePubkey: "N2", ActivatedStake: 300},
			},
			Delinquent: []solana.VoteAccount{
				{VotePubkey: "V3", NodePubkey: "N3", ActivatedStake: 200},
			},
		},
		accounts: []solana.ProgramAccount{
			{Pubkey: "cfg", Data: configRecord(2, id, `{"name":"Nine","website":"https://nine.example"}`)},
		},
	}
	reg := prometheus.NewRegistry()
	svc := NewService(src, metrics.NewMetrics(reg), slog.New(slog.NewTextHandler(io.Discard, nil)))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "V2", list[0].VotePubkey)
	assert.Equal(t, "V3", list[1].VotePubkey)
	assert.False(t, list[1].Active)
	assert.Equal(t, "V1", list[2].VotePubkey)
	assert.True(t, list[2].Active)
	require.NotNil(t, list[2].Name)
	assert.Equal(t, "Nine", *list[2].Name)
	assert.Nil(t, list[0].Name)

	raw, err := json.Marshal(list[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"votePubkey":"V1","nodePubkey":"`+node+`","activatedStake":100,"commission":5,
		"lastVote":0,"rootSlot":0,"epochCredits":null,"active":true,
		"name":"Nine","iconUrl":null,"website":"https://nine.example","details":null
	}`, string(raw))
}

func TestService_ListError(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	svc := NewService(src, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}
