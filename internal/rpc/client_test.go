package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newTestServer answers each method with the given result JSON
func newTestServer(t *testing.T, results map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(url string, retries int) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewClient(ClientConfig{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		Logger:       logger,
	})
}

const testBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

func TestClient_GetLatestBlockhash(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getLatestBlockhash": `{"context":{"slot":1},"value":{"blockhash":"` + testBlockhash + `","lastValidBlockHeight":100}}`,
	})
	c := newTestClient(srv.URL, 0)

	hash, err := c.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testBlockhash, hash.String())
}

func TestClient_RPCError(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{})
	c := newTestClient(srv.URL, 0)

	_, err := c.GetMinimumBalanceForRentExemption(context.Background(), 0)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	_, err = newTestClient(srv.URL, 2).GetBalance(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Contains(t, err.Error(), "3 attempt(s)")
}

func TestClient_GetTokenAccountBalance(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getTokenAccountBalance": `{"context":{"slot":1},"value":{"amount":"123456789","decimals":6,"uiAmount":123.456789,"uiAmountString":"123.456789"}}`,
	})

	amount, err := newTestClient(srv.URL, 0).GetTokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), amount)
}

func TestClient_GetMultipleAccounts(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	srv, _ := newTestServer(t, map[string]string{
		"getMultipleAccounts": `{"context":{"slot":1},"value":[{"lamports":10,"owner":"11111111111111111111111111111111","data":["` + data + `","base64"],"executable":false,"rentEpoch":0},null]}`,
	})

	accounts, err := newTestClient(srv.URL, 0).GetMultipleAccounts(context.Background(), []solana.PublicKey{
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
	})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Nil(t, accounts[1])

	raw, err := accounts[0].Data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
}

func TestClient_GetMultipleAccountsLengthMismatch(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getMultipleAccounts": `{"context":{"slot":1},"value":[null]}`,
	})

	_, err := newTestClient(srv.URL, 0).GetMultipleAccounts(context.Background(), []solana.PublicKey{
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
	})
	assert.Error(t, err)
}

func TestClient_GetProgramAccounts(t *testing.T) {
	pk := solana.NewWallet().PublicKey().String()
	srv, _ := newTestServer(t, map[string]string{
		"getProgramAccounts": `[{"pubkey":"` + pk + `","account":{"lamports":1,"owner":"x","data":["AAE=","base64"],"executable":false,"rentEpoch":0}}]`,
	})

	accounts, err := newTestClient(srv.URL, 0).GetProgramAccounts(context.Background(), solana.SystemProgramID, 324)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, pk, accounts[0].Pubkey)
}

func TestChainData(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getLatestBlockhash":                `{"context":{"slot":1},"value":{"blockhash":"` + testBlockhash + `","lastValidBlockHeight":100}}`,
		"getFeeForMessage":                  `{"context":{"slot":1},"value":5000}`,
		"getMinimumBalanceForRentExemption": `890880`,
		"getAccountInfo":                    `{"context":{"slot":1},"value":{"lamports":42,"owner":"11111111111111111111111111111111","data":["","base64"],"executable":false,"rentEpoch":0}}`,
	})
	d := NewChainData(newTestClient(srv.URL, 0), solana.NewWallet().PublicKey())
	ctx := context.Background()

	lps, err := d.LamportsPerSignature(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), lps)

	minimum, err := d.MinimumBalanceForRentExemption(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(890880), minimum)

	balance, exists, err := d.AccountBalance(ctx, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(42), balance)
}

func TestChainData_MissingAccount(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getAccountInfo": `{"context":{"slot":1},"value":null}`,
	})
	d := NewChainData(newTestClient(srv.URL, 0), solana.NewWallet().PublicKey())

	balance, exists, err := d.AccountBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, uint64(0), balance)
}

func TestChainData_ExpiredFeeQuote(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"getLatestBlockhash": `{"context":{"slot":1},"value":{"blockhash":"` + testBlockhash + `","lastValidBlockHeight":100}}`,
		"getFeeForMessage":   `{"context":{"slot":1},"value":null}`,
	})
	d := NewChainData(newTestClient(srv.URL, 0), solana.NewWallet().PublicKey())

	_, err := d.LamportsPerSignature(context.Background())
	assert.Error(t, err)
}

func TestAccountData_Bytes(t *testing.T) {
	raw, err := AccountData{"AAE=", "base64"}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, raw)

	_, err = AccountData{"x", "jsonParsed"}.Bytes()
	assert.Error(t, err)

	raw, err = AccountData(nil).Bytes()
	require.NoError(t, err)
	assert.Nil(t, raw)
}
