package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/fogoscan/service/metrics"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	signatures []*rpc.TransactionSignature
	responses  map[string]string // method -> raw JSON result
	err        error

	lastOpts   *rpc.GetSignaturesForAddressOpts
	lastParams map[string][]interface{}
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.signatures, nil
}

func (m *mockRPCClient) Call(ctx context.Context, out interface{}, method string, params []interface{}) error {
	if m.lastParams == nil {
		m.lastParams = make(map[string][]interface{})
	}
	m.lastParams[method] = params
	if m.err != nil {
		return m.err
	}
	raw, ok := m.responses[method]
	if !ok {
		raw = "null"
	}
	return json.Unmarshal([]byte(raw), out)
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func testSignature(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	s[63] = b
	return s
}

func TestGetSignaturesPage_ConvertsSignatures(t *testing.T) {
	bt := solana.UnixTimeSeconds(1718000000)
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: testSignature(1), Slot: 100, BlockTime: &bt},
			{Signature: testSignature(2), Slot: 99, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		},
	}
	client := newTestClient(mock)

	page, err := client.GetSignaturesPage(context.Background(), VoteProgramID.String(), "", 1000)
	require.NoError(t, err)
	require.Len(t, page, 2)

	assert.Equal(t, testSignature(1).String(), page[0].Signature)
	assert.Equal(t, uint64(100), page[0].Slot)
	require.NotNil(t, page[0].BlockTime)
	assert.Equal(t, int64(1718000000), *page[0].BlockTime)
	assert.Nil(t, page[0].Err)

	assert.Nil(t, page[1].BlockTime)
	assert.JSONEq(t, `{"InstructionError":[0,"Custom"]}`, string(page[1].Err))

	require.NotNil(t, mock.lastOpts.Limit)
	assert.Equal(t, 1000, *mock.lastOpts.Limit)
	assert.Equal(t, solana.Signature{}, mock.lastOpts.Before)
}

func TestGetSignaturesPage_PassesCursor(t *testing.T) {
	mock := &mockRPCClient{}
	client := newTestClient(mock)

	cursor := testSignature(9)
	_, err := client.GetSignaturesPage(context.Background(), VoteProgramID.String(), cursor.String(), 10)
	require.NoError(t, err)
	assert.Equal(t, cursor, mock.lastOpts.Before)
}

func TestGetSignaturesPage_Errors(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	_, err := client.GetSignaturesPage(context.Background(), "not-base58-0OIl", "", 10)
	assert.Error(t, err)

	_, err = client.GetSignaturesPage(context.Background(), VoteProgramID.String(), "bad cursor", 10)
	assert.Error(t, err)

	failing := newTestClient(&mockRPCClient{err: errors.New("429 Too Many Requests")})
	_, err = failing.GetSignaturesPage(context.Background(), VoteProgramID.String(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGetVoteAccounts(t *testing.T) {
	mock := &mockRPCClient{responses: map[string]string{
		"getVoteAccounts": `{
			"current": [{"votePubkey":"V1","nodePubkey":"N1","activatedStake":500,"commission":5,"epochVoteAccount":true,"epochCredits":[[1,10,0]],"lastVote":77,"rootSlot":70}],
			"delinquent": [{"votePubkey":"V2","nodePubkey":"N2","activatedStake":1,"commission":100,"lastVote":1,"rootSlot":0}]
		}`,
	}}
	client := newTestClient(mock)

	accounts, err := client.GetVoteAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts.Current, 1)
	require.Len(t, accounts.Delinquent, 1)
	assert.Equal(t, "V1", accounts.Current[0].VotePubkey)
	assert.Equal(t, uint64(500), accounts.Current[0].ActivatedStake)
	assert.Equal(t, uint8(5), accounts.Current[0].Commission)
	assert.Equal(t, [][]uint64{{1, 10, 0}}, accounts.Current[0].EpochCredits)
	assert.Equal(t, "N2", accounts.Delinquent[0].NodePubkey)
}

func TestGetConfigAccounts(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte("hello"))
	mock := &mockRPCClient{responses: map[string]string{
		"getProgramAccounts": `[
			{"pubkey":"A","account":{"data":["` + good + `","base64"],"lamports":1,"owner":"Config1111111111111111111111111111111111111"}},
			{"pubkey":"B","account":{"data":["%%%","base64"]}},
			{"pubkey":"C","account":{"data":[]}}
		]`,
	}}
	client := newTestClient(mock)

	accounts, err := client.GetConfigAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "A", accounts[0].Pubkey)
	assert.Equal(t, []byte("hello"), accounts[0].Data)

	params := mock.lastParams["getProgramAccounts"]
	require.Len(t, params, 2)
	assert.Equal(t, ConfigProgramID.String(), params[0])
}

func TestGetParsedTransaction(t *testing.T) {
	mock := &mockRPCClient{responses: map[string]string{
		"getTransaction": `{
			"slot": 5,
			"blockTime": 1718000000,
			"meta": {"err": null, "fee": 5000, "preBalances": [10, 20], "postBalances": [5, 30],
				"innerInstructions": [{"index": 0, "instructions": [{"program":"system","programId":"11111111111111111111111111111111","parsed":{"type":"transfer"}}]}]},
			"transaction": {"message": {"instructions": [
				{"program":"vote","programId":"Vote111111111111111111111111111111111111111","parsed":{"type":"towersync"}},
				{"programId":"Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo","data":"abc"}
			]}}
		}`,
	}}
	client := newTestClient(mock)

	tx, err := client.GetParsedTransaction(context.Background(), "sig")
	require.NoError(t, err)
	require.NotNil(t, tx.Meta)
	assert.Equal(t, uint64(5000), tx.Meta.Fee)
	require.Len(t, tx.Transaction.Message.Instructions, 2)
	assert.Equal(t, "towersync", tx.Transaction.Message.Instructions[0].ParsedType())
	assert.Equal(t, "", tx.Transaction.Message.Instructions[1].ParsedType())
	assert.Equal(t, "transfer", tx.Meta.InnerInstructions[0].Instructions[0].ParsedType())

	params := mock.lastParams["getTransaction"]
	opts := params[1].(map[string]interface{})
	assert.Equal(t, "jsonParsed", opts["encoding"])
	assert.Equal(t, 0, opts["maxSupportedTransactionVersion"])
}

func TestGetParsedTransaction_NotFound(t *testing.T) {
	client := newTestClient(&mockRPCClient{})
	_, err := client.GetParsedTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestProgramLabel(t *testing.T) {
	label, ok := ProgramLabel("Vote111111111111111111111111111111111111111")
	assert.True(t, ok)
	assert.Equal(t, "vote", label)

	label, ok = ProgramLabel("11111111111111111111111111111111")
	assert.True(t, ok)
	assert.Equal(t, "system", label)

	label, ok = ProgramLabel("Stake11111111111111111111111111111111111111")
	assert.True(t, ok)
	assert.Equal(t, "stake", label)

	_, ok = ProgramLabel("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
	assert.False(t, ok)
}
