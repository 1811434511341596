package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const votePubkey = "Vote111111111111111111111111111111111111111"

func TestValidators_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/validators", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"votePubkey":"V1","nodePubkey":"N1","activatedStake":900,"commission":5,"active":true,"name":"Alpha","iconUrl":null}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	got, err := client.Validators(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "V1", got[0].VotePubkey)
	assert.Equal(t, uint64(900), got[0].ActivatedStake)
	require.NotNil(t, got[0].Name)
	assert.Equal(t, "Alpha", *got[0].Name)
	assert.Nil(t, got[0].IconURL)
}

func TestValidators_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "rpc unavailable"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Validators(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCached bool
		wantDone   bool
		wantMonths int
	}{
		{name: "not cached", body: `{"cached":false}`},
		{
			name:       "partial",
			body:       `{"cached":true,"months":{"2024-05":{"count":3,"amount":0.000015,"total":4}},"done":false}`,
			wantCached: true,
			wantMonths: 1,
		},
		{
			name:       "complete",
			body:       `{"cached":true,"months":{},"done":true}`,
			wantCached: true,
			wantDone:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/tx-cache/"+votePubkey, r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			status, err := NewClient(server.URL, nil, nil).Status(context.Background(), votePubkey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, status.Cached)
			assert.Equal(t, tt.wantDone, status.Done)
			assert.Len(t, status.Months, tt.wantMonths)
		})
	}
}

func TestStatus_AmountIsExact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cached":true,"months":{"2024-05":{"count":3,"amount":0.000015,"total":4}},"done":false}`))
	}))
	defer server.Close()

	status, err := NewClient(server.URL, nil, nil).Status(context.Background(), votePubkey)
	require.NoError(t, err)
	month := status.Months["2024-05"]
	assert.True(t, month.Amount.Equal(decimal.RequireFromString("0.000015")), "got %s", month.Amount)
	assert.Equal(t, 4, month.Total)
}

func TestMonthTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tx-month/"+votePubkey+"/2024-05", r.URL.Path)
		w.Write([]byte(`{"transactions":[{"signature":"a","slot":1,"blockTime":1715774400,"err":null},{"signature":"b","slot":2,"blockTime":null,"err":{"InstructionError":[0,"Custom"]}}]}`))
	}))
	defer server.Close()

	txs, err := NewClient(server.URL, nil, nil).MonthTransactions(context.Background(), votePubkey, "2024-05")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.False(t, txs[0].Failed())
	assert.True(t, txs[1].Failed())
	assert.Nil(t, txs[1].BlockTime)
}

func TestDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/tx-details", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Signatures []string `json:"signatures"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"s1"}, body.Signatures)

		w.Write([]byte(`[{"signature":"s1","amount":0.000005,"fee":0.000005,"instructions":["vote"]}]`))
	}))
	defer server.Close()

	got, err := NewClient(server.URL, nil, nil).Details(context.Background(), []string{"s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"vote"}, got[0].Instructions)
	assert.Equal(t, "0.000005", got[0].Fee.String())
}

func TestStartBackfill(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/api/backfill/"+votePubkey, r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"workflow_id":"backfill-validator-x","run_id":"r1"}`))
		}))
		defer server.Close()

		got, err := NewClient(server.URL, nil, nil).StartBackfill(context.Background(), votePubkey)
		require.NoError(t, err)
		assert.Equal(t, "backfill-validator-x", got.WorkflowID)
		assert.Equal(t, "r1", got.RunID)
	})

	t.Run("disabled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"backfill is not enabled"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, nil, nil).StartBackfill(context.Background(), votePubkey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backfill is not enabled")
	})
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL+"/", nil, nil).Health(context.Background()))
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			fmt.Fprint(w, f)
			w.(http.Flusher).Flush()
		}
	}))
}

func TestScan_DeliversEventsInOrder(t *testing.T) {
	server := sseServer(t,
		`data: {"type":"cached","months":{"2024-04":{"count":1,"amount":0.000005,"total":1}},"done":false}`+"\n\n",
		": keepalive\n\n",
		`data: {"type":"batch","batchNum":1,"months":{"2024-04":{"count":2,"amount":0.00001,"total":2}},"done":true}`+"\n\n",
		`data: {"type":"done","months":{"2024-04":{"count":2,"amount":0.00001,"total":2}},"done":true}`+"\n\n",
	)
	defer server.Close()

	var types []string
	err := NewClient(server.URL, nil, nil).Scan(context.Background(), votePubkey, func(ev ScanEvent) error {
		types = append(types, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cached", "batch", "done"}, types)
}

func TestScan_ErrorEvent(t *testing.T) {
	server := sseServer(t, `data: {"type":"error","months":null,"done":false,"message":"429 Too Many Requests"}`+"\n\n")
	defer server.Close()

	err := NewClient(server.URL, nil, nil).Scan(context.Background(), votePubkey, func(ScanEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429 Too Many Requests")
}

func TestScan_CallbackStopsStream(t *testing.T) {
	server := sseServer(t,
		`data: {"type":"batch","batchNum":1,"months":{},"done":false}`+"\n\n",
		`data: {"type":"batch","batchNum":2,"months":{},"done":false}`+"\n\n",
	)
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewClient(server.URL, nil, nil).Scan(context.Background(), votePubkey, func(ScanEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestScan_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid address format: must contain only valid base58 characters"}`))
	}))
	defer server.Close()

	err := NewClient(server.URL, nil, nil).Scan(context.Background(), "0OIl", func(ScanEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base58")
}
