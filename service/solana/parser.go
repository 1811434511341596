package solana

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known program IDs
var (
	// VoteProgramID receives validator votes
	VoteProgramID = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")

	// SystemProgramID is the native transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// StakeProgramID manages stake accounts
	StakeProgramID = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

	// ConfigProgramID owns validator-info config accounts
	ConfigProgramID = solana.MustPublicKeyFromBase58("Config1111111111111111111111111111111111111")
)

var programLabels = map[string]string{
	VoteProgramID.String():   "vote",
	SystemProgramID.String(): "system",
	StakeProgramID.String():  "stake",
}

// ProgramLabel returns the short label for a well-known program ID.
func ProgramLabel(programID string) (string, bool) {
	label, ok := programLabels[programID]
	return label, ok
}

// signatureToDomain converts an RPC TransactionSignature to our domain SignatureInfo.
func signatureToDomain(sig *rpc.TransactionSignature) SignatureInfo {
	info := SignatureInfo{
		Signature: sig.Signature.String(),
		Slot:      sig.Slot,
	}

	if sig.BlockTime != nil {
		bt := int64(*sig.BlockTime)
		info.BlockTime = &bt
	}

	if sig.Err != nil {
		raw, err := json.Marshal(sig.Err)
		if err != nil || string(raw) == "null" {
			raw = json.RawMessage(`"unknown error"`)
		}
		info.Err = raw
	}

	return info
}
