package solana

import (
	"encoding/json"
)

// SignatureInfo is one entry of a getSignaturesForAddress page.
// This is our domain model, independent of the RPC response format.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64          // unix seconds, nil when the node has no block time
	Err       json.RawMessage // nil if the transaction succeeded
}

// VoteAccount is a single entry of getVoteAccounts.
type VoteAccount struct {
	VotePubkey       string     `json:"votePubkey"`
	NodePubkey       string     `json:"nodePubkey"`
	ActivatedStake   uint64     `json:"activatedStake"`
	Commission       uint8      `json:"commission"`
	EpochVoteAccount bool       `json:"epochVoteAccount"`
	EpochCredits     [][]uint64 `json:"epochCredits"`
	LastVote         uint64     `json:"lastVote"`
	RootSlot         uint64     `json:"rootSlot"`
}

// VoteAccounts is the getVoteAccounts result.
type VoteAccounts struct {
	Current    []VoteAccount `json:"current"`
	Delinquent []VoteAccount `json:"delinquent"`
}

// ProgramAccount is a decoded getProgramAccounts entry.
type ProgramAccount struct {
	Pubkey string
	Data   []byte
}

// programAccountResult mirrors the base64-encoded getProgramAccounts wire shape.
type programAccountResult struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data     []string `json:"data"`
		Lamports uint64   `json:"lamports"`
		Owner    string   `json:"owner"`
	} `json:"account"`
}

// ParsedTransaction is the subset of a jsonParsed getTransaction result
// needed for fee and instruction summaries.
type ParsedTransaction struct {
	Slot      uint64           `json:"slot"`
	BlockTime *int64           `json:"blockTime"`
	Meta      *TransactionMeta `json:"meta"`

	Transaction struct {
		Message struct {
			Instructions []ParsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// TransactionMeta holds fee and balance data in lamports.
type TransactionMeta struct {
	Err               json.RawMessage    `json:"err"`
	Fee               uint64             `json:"fee"`
	PreBalances       []uint64           `json:"preBalances"`
	PostBalances      []uint64           `json:"postBalances"`
	InnerInstructions []InnerInstruction `json:"innerInstructions"`
}

// InnerInstruction groups the instructions invoked by one top-level instruction.
type InnerInstruction struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// ParsedInstruction is an instruction in jsonParsed form. Parsed is an object
// for recognised programs and a plain string (or absent) otherwise.
type ParsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
}

// ParsedType returns parsed.type when the instruction was decoded by the node.
func (ix ParsedInstruction) ParsedType() string {
	if len(ix.Parsed) == 0 || ix.Parsed[0] != '{' {
		return ""
	}
	var p struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(ix.Parsed, &p); err != nil {
		return ""
	}
	return p.Type
}
