package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/wallet-store/internal/model"
)

func newGraphQLServer(t *testing.T, handle func(t *testing.T, req graphQLRequest, r *http.Request) string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/graphql" {
			t.Errorf("path = %s, want /graphql", r.URL.Path)
		}

		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handle(t, req, r)))
	}))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMutateRewardsCompleted_SendsAuthorization(t *testing.T) {
	ts := newGraphQLServer(t, func(t *testing.T, req graphQLRequest, r *http.Request) string {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("authorization = %q, want %q", got, "Bearer abc")
		}
		ids, ok := req.Variables["ids"].([]any)
		if !ok || len(ids) != 2 || ids[0] != "quiz-1" || ids[1] != "quiz-2" {
			t.Errorf("unexpected ids: %#v", req.Variables["ids"])
		}
		return `{"data":{"earnCompleted":[{"id":"quiz-1","value":100,"completed":true},{"id":"quiz-2","value":50,"completed":true}]}}`
	})
	defer ts.Close()

	client := NewClient(ts.URL)
	client.SetAuthToken("Bearer abc")

	res, err := client.MutateRewardsCompleted(testContext(t), []string{"quiz-1", "quiz-2"})
	if err != nil {
		t.Fatalf("MutateRewardsCompleted error: %v", err)
	}
	if len(res) != 2 || !res[0].Completed || res[0].Value != 100 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestSetAuthToken_EmptyRemovesHeader(t *testing.T) {
	ts := newGraphQLServer(t, func(t *testing.T, req graphQLRequest, r *http.Request) string {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("authorization header must be absent")
		}
		return `{"data":{"earnList":[]}}`
	})
	defer ts.Close()

	client := NewClient(ts.URL)
	client.SetAuthToken("Bearer abc")
	client.SetAuthToken("")

	if _, err := client.QueryRewards(testContext(t)); err != nil {
		t.Fatalf("QueryRewards error: %v", err)
	}
}

func TestQueryWallet_MapsTransactions(t *testing.T) {
	ts := newGraphQLServer(t, func(t *testing.T, req graphQLRequest, r *http.Request) string {
		return `{"data":{"wallet":[{
			"id":"w-btc","currency":"BTC","balance":"1500",
			"transactions":[
				{"id":"t1","amount":1000,"description":"coffee","createdAt":1714564800,
				 "direction":"SEND","status":"SUCCESS","settlementVia":"Ln",
				 "settlementPrice":{"base":300,"offset":2}},
				{"id":"t2","amount":2500,"description":"","createdAt":1714564900,
				 "direction":"RECEIVE","status":"PENDING","settlementVia":"IntraLedger",
				 "counterPartyUsername":"alice"}
			]}]}}`
	})
	defer ts.Close()

	client := NewClient(ts.URL)

	ws, err := client.QueryWallet(testContext(t))
	if err != nil {
		t.Fatalf("QueryWallet error: %v", err)
	}
	if len(ws.Wallets) != 1 || len(ws.Transactions) != 2 {
		t.Fatalf("unexpected wallet state: %+v", ws)
	}

	w := ws.Wallets[0]
	if w.Currency != model.CurrencyBTC || w.Balance.IntPart() != 1500 {
		t.Fatalf("unexpected wallet: %+v", w)
	}
	if len(w.TransactionIDs) != 2 || w.TransactionIDs[0] != "t1" || w.TransactionIDs[1] != "t2" {
		t.Fatalf("unexpected transaction ids: %v", w.TransactionIDs)
	}

	t1 := ws.Transactions[0]
	if t1.SettlementPrice == nil || t1.SettlementPrice.Base != 300 || t1.SettlementPrice.Offset != 2 {
		t.Fatalf("unexpected settlement price: %+v", t1.SettlementPrice)
	}
	if t1.Direction != model.DirectionSend || t1.Settlement.Via != model.SettlementLightning {
		t.Fatalf("unexpected transaction: %+v", t1)
	}
	if !t1.CreatedAt.Equal(time.Unix(1714564800, 0)) {
		t.Fatalf("createdAt = %v", t1.CreatedAt)
	}

	t2 := ws.Transactions[1]
	if t2.SettlementPrice != nil || t2.Settlement.CounterPartyUsername != "alice" {
		t.Fatalf("unexpected transaction: %+v", t2)
	}
}

func TestQueryPrice_UsesServerTimestamp(t *testing.T) {
	ts := newGraphQLServer(t, func(t *testing.T, req graphQLRequest, r *http.Request) string {
		return `{"data":{"btcPrice":{"base":250,"offset":2,"timestamp":1714564800}}}`
	})
	defer ts.Close()

	tick, err := NewClient(ts.URL).QueryPrice(testContext(t))
	if err != nil {
		t.Fatalf("QueryPrice error: %v", err)
	}
	if tick.Base != 250 || tick.Offset != 2 || tick.Timestamp.Unix() != 1714564800 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
}

func TestDo_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).QueryRewards(testContext(t))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestDo_GraphQLErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{
			name: "unauthenticated",
			body: `{"errors":[{"message":"not logged in","extensions":{"code":"UNAUTHENTICATED"}}]}`,
			want: ErrUnauthorized,
		},
		{
			name: "generic",
			body: `{"errors":[{"message":"boom"}]}`,
			want: ErrGraphQL,
		},
		{
			name: "missing field",
			body: `{"data":{}}`,
			want: ErrGraphQL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newGraphQLServer(t, func(t *testing.T, req graphQLRequest, r *http.Request) string {
				return tt.body
			})
			defer ts.Close()

			_, err := NewClient(ts.URL).QueryRewards(testContext(t))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDo_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).QueryRewards(testContext(t))
	if err == nil {
		t.Fatalf("expected error for 400")
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrGraphQL) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestDo_NotConfigured(t *testing.T) {
	_, err := NewClient("").QueryRewards(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
