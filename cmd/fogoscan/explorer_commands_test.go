package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVoteAddress = "Vote111111111111111111111111111111111111111"

// runApp runs the CLI against server and returns what it printed.
func runApp(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out

	argv := append([]string{"fogoscan", "--server-url", server.URL}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func explorerServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/validators", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"votePubkey":"V1","nodePubkey":"N1","activatedStake":2500000000000,"commission":5,"active":true,"name":"Alpha"},
			{"votePubkey":"V2","nodePubkey":"N2","activatedStake":1000000000,"commission":10,"active":false,"name":null}
		]`))
	})
	mux.HandleFunc("GET /api/tx-cache/{vote}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cached":true,"months":{"2024-04":{"count":2,"amount":0.00001,"total":3},"2024-05":{"count":1,"amount":0.000005,"total":1}},"done":true}`))
	})
	mux.HandleFunc("GET /api/tx-month/{vote}/{month}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[{"signature":"ok1","slot":5,"blockTime":1714000000,"err":null},{"signature":"bad1","slot":6,"blockTime":null,"err":{"InstructionError":[0,"Custom"]}}]}`))
	})
	mux.HandleFunc("POST /api/tx-details", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"signature":"s1","amount":0.000005,"fee":0.000005,"instructions":["vote","compute-budget"]}]`))
	})
	mux.HandleFunc("GET /api/tx-scan/{vote}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"batch","batchNum":1,"months":{"2024-05":{"count":1,"amount":0.000005,"total":1}},"done":true}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"done","months":{"2024-05":{"count":1,"amount":0.000005,"total":1}},"done":true}`+"\n\n")
	})
	mux.HandleFunc("POST /api/backfill/{vote}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"workflow_id":"backfill-validator-` + r.PathValue("vote") + `","run_id":"run-9"}`))
	})
	return httptest.NewServer(mux)
}

func TestValidatorsCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "validators")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "2500.00")
	assert.Contains(t, out, "delinquent")
	assert.Contains(t, out, "Total: 2 validator(s)")

	out, err = runApp(t, server, "validators", "--active-only")
	require.NoError(t, err)
	assert.NotContains(t, out, "V2")
	assert.Contains(t, out, "Total: 1 validator(s)")
}

func TestValidatorsCommand_JQ(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "--jq", ".[].votePubkey", "validators")
	require.NoError(t, err)
	assert.Equal(t, "\"V1\"\n\"V2\"\n", out)
}

func TestStatusCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "status", testVoteAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "(complete)")
	// Newest month first, then the total row.
	assert.Less(t, strings.Index(out, "2024-05"), strings.Index(out, "2024-04"))
	assert.Contains(t, out, "0.000015")

	out, err = runApp(t, server, "--jq", `.months["2024-04"].total`, "status", testVoteAddress)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestStatusCommand_MissingAddress(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	_, err := runApp(t, server, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vote address is required")
}

func TestMonthCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "month", testVoteAddress, "2024-04")
	require.NoError(t, err)
	assert.Contains(t, out, "ok1")
	assert.Contains(t, out, "bad1")
	assert.Contains(t, out, "Total: 2 transaction(s)")

	out, err = runApp(t, server, "month", "--failed", testVoteAddress, "2024-04")
	require.NoError(t, err)
	assert.NotContains(t, out, "ok1")
	assert.Contains(t, out, "bad1")
}

func TestDetailsCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "details", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "vote, compute-budget")

	_, err = runApp(t, server, "details")
	require.Error(t, err)
}

func TestScanCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "scan", testVoteAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "batch 1: 1 transaction(s) across 1 month(s)")
	assert.Contains(t, out, "done: 1 transaction(s)")
	assert.Contains(t, out, "TOTAL")

	out, err = runApp(t, server, "--jq", ".type", "scan", testVoteAddress)
	require.NoError(t, err)
	assert.Equal(t, "\"batch\"\n\"done\"\n", out)
}

func TestBackfillCommand(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	out, err := runApp(t, server, "backfill", testVoteAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "backfill-validator-"+testVoteAddress)
	assert.Contains(t, out, "run-9")
}

func TestInvalidJQFilter(t *testing.T) {
	server := explorerServer(t)
	defer server.Close()

	_, err := runApp(t, server, "--jq", ".[", "validators")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}
