package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"risparmi/internal/analyzer"
	"risparmi/internal/coordinator"
	"risparmi/internal/core"
	"risparmi/internal/goals"
	"risparmi/internal/ledger/memory"
	"risparmi/internal/services"
)

type stubAdvisor struct{}

func (stubAdvisor) Analyze(_ context.Context, _ []core.Transaction, _, _ decimal.Decimal) analyzer.Advice {
	return analyzer.Advice{
		Tips:   []core.SavingsTip{{Title: "Track spending", Impact: core.ImpactMedium, Source: analyzer.SourceLocal}},
		Method: core.RecommendedMethod{Title: "50/30/20 Rule", SuitabilityScore: 80, Source: analyzer.SourceLocal},
	}
}

type testEnv struct {
	srv   *Server
	coord *coordinator.Coordinator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := memory.New()
	require.NoError(t, err)
	pool := goals.NewPool()
	format, err := core.NewFormatter("USD", "en-US", "")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }

	var n atomic.Int64
	coord := coordinator.New(store, pool, stubAdvisor{}, services.NewRolloverService(store, pool, clock), format,
		coordinator.WithClock(clock),
		coordinator.WithIDGenerator(func() string { return fmt.Sprintf("tx-%d", n.Add(1)) }))
	coord.Start()
	t.Cleanup(coord.Close)

	srv := NewServer(":0", coord, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, coord: coord}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) waitTransactions(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(e.coord.Snapshot().Transactions) == n }, 2*time.Second, 5*time.Millisecond)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	ready := errors.New("database locked")
	var fail atomic.Bool
	env := newTestEnv(t, Options{Ready: func(context.Context) error {
		if fail.Load() {
			return ready
		}
		return nil
	}})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	rr := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	fail.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/transactions", `{"kind":"income","amount":"2000 + 500","description":"Salary"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := decodeBody[core.Transaction](t, rr)
	assert.Equal(t, core.Income, tx.Kind)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, "2024-06-10", tx.Date.String())

	rr = env.do(t, http.MethodPost, "/api/transactions", `{"kind":"expense","amount":12.5,"description":"  Lunch\u0007 "}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Lunch", decodeBody[core.Transaction](t, rr).Description)

	env.waitTransactions(t, 2)
	rr = env.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[transactionsResponse](t, rr)
	assert.Len(t, list.Transactions, 2)
	assert.True(t, list.Totals.Remaining.Equal(decimal.RequireFromString("2487.5")))
	require.Len(t, list.Categories, 1)
	assert.Equal(t, "Lunch", list.Categories[0].Name)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "").Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/transactions", "").Code)
	env.waitTransactions(t, 0)
}

func TestCreateTransaction_Rejects(t *testing.T) {
	env := newTestEnv(t, Options{})
	tests := []struct {
		name string
		body string
		code string
	}{
		{"zero amount", `{"kind":"EXPENSE","amount":"0","description":"x"}`, "invalid_argument"},
		{"negative amount", `{"kind":"EXPENSE","amount":-4,"description":"x"}`, "invalid_argument"},
		{"unknown kind", `{"kind":"GIFT","amount":"4","description":"x"}`, "invalid_argument"},
		{"empty description", `{"kind":"EXPENSE","amount":"4","description":"   "}`, "invalid_argument"},
		{"unknown field", `{"kind":"EXPENSE","amount":"4","description":"x","category":"y"}`, "invalid_argument"},
		{"not json", `kind=EXPENSE`, "invalid_argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rr).Code)
		})
	}
	assert.Empty(t, env.coord.Snapshot().Transactions)
}

func TestGoals(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/goals", `{"name":"Car","target_amount":"5000"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	car := decodeBody[core.SavingsGoal](t, rr)
	rr = env.do(t, http.MethodPost, "/api/goals", `{"name":"Trip","target_amount":1000}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	trip := decodeBody[core.SavingsGoal](t, rr)

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/goals", `{"name":"","target_amount":"10"}`).Code)

	rr = env.do(t, http.MethodPost, "/api/goals/"+car.ID+"/contribute", `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/goals/"+trip.ID+"/contribute", `{"amount":"300"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/goals/"+car.ID+"/redistribute", `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeBody[core.SavingsGoal](t, rr).CurrentAmount.Equal(decimal.NewFromInt(200)))

	rr = env.do(t, http.MethodPost, "/api/goals/"+car.ID+"/redistribute", `{"amount":"10000"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "insufficient_funds", decodeBody[ErrorResponse](t, rr).Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/goals/nope/contribute", `{"amount":"1"}`).Code)

	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodGet, "/api/goals/statistics", "")
		return decodeBody[core.Statistics](t, rr).TotalCurrent.Equal(decimal.NewFromInt(425))
	}, 2*time.Second, 5*time.Millisecond)

	rr = env.do(t, http.MethodGet, "/api/goals", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[goalsResponse](t, rr).Goals, 2)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/goals/"+trip.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/goals/"+trip.ID, "").Code)
}

func TestSavingsTransfers(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodPost, "/api/goals", `{"name":"House","target_amount":"10000"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	house := decodeBody[core.SavingsGoal](t, rr)

	rr = env.do(t, http.MethodPost, "/api/goals/"+house.ID+"/save-remaining", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "nothing to save yet")

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", `{"kind":"INCOME","amount":"1000","description":"Salary"}`).Code)

	rr = env.do(t, http.MethodPost, "/api/goals/"+house.ID+"/save", `{"amount":"200"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = env.do(t, http.MethodPost, "/api/goals/"+house.ID+"/save-remaining", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeBody[core.SavingsGoal](t, rr).CurrentAmount.Equal(decimal.NewFromInt(1000)))

	env.waitTransactions(t, 3)
	snap := env.coord.Snapshot()
	assert.Equal(t, "Saved to House", snap.Transactions[1].Description)
	assert.Equal(t, "All remaining saved to House", snap.Transactions[2].Description)
	assert.True(t, snap.Totals.Remaining.IsZero())
}

func TestAdviceAndRollover(t *testing.T) {
	env := newTestEnv(t, Options{})

	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/advice/refresh", "").Code)
	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodGet, "/api/advice", "")
		a := decodeBody[adviceResponse](t, rr)
		return !a.Loading && a.Method != nil
	}, 2*time.Second, 5*time.Millisecond)

	rr := env.do(t, http.MethodGet, "/api/advice", "")
	advice := decodeBody[adviceResponse](t, rr)
	assert.Equal(t, "50/30/20 Rule", advice.Method.Title)
	require.Len(t, advice.Tips, 1)

	env.do(t, http.MethodPost, "/api/transactions", `{"kind":"INCOME","amount":"50","description":"Gift"}`)
	rr = env.do(t, http.MethodPost, "/api/period/rollover", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[services.RolloverResult](t, rr)
	assert.Equal(t, "2024-05", res.ClosedPeriod)
	assert.False(t, res.Saved, "no goal to receive the surplus")
	assert.Equal(t, 1, res.Cleared)

	rr = env.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "USD", decodeBody[coordinator.Snapshot](t, rr).Currency)
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 1})
	body := `{"kind":"EXPENSE","amount":"1","description":"Coffee"}`

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/transactions", body).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/transactions", "").Code)
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, Options{})
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first coordinator.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "USD", first.Currency)

	_, err = env.coord.AddTransaction(ctx, core.Expense, decimal.NewFromInt(9), "Books")
	require.NoError(t, err)

	for {
		var snap coordinator.Snapshot
		require.NoError(t, wsjson.Read(ctx, conn, &snap))
		assert.Greater(t, snap.Version, first.Version)
		if len(snap.Transactions) == 1 {
			assert.Equal(t, "Books", snap.Transactions[0].Description)
			return
		}
	}
}

func TestClearAllData(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", `{"kind":"income","amount":"10","description":"Gift"}`).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/goals", `{"name":"Car","target_amount":"100"}`).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/data", "").Code)

	env.waitTransactions(t, 0)
	require.Eventually(t, func() bool {
		rr := env.do(t, http.MethodGet, "/api/goals", "")
		return rr.Code == http.StatusOK && len(decodeBody[goalsResponse](t, rr).Goals) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestListingsReadTheirOwnWrites(t *testing.T) {
	env := newTestEnv(t, Options{})

	for i := 0; i < 20; i++ {
		rr := env.do(t, http.MethodPost, "/api/goals", fmt.Sprintf(`{"name":"Goal %d","target_amount":"100"}`, i))
		require.Equal(t, http.StatusCreated, rr.Code)
		created := decodeBody[core.SavingsGoal](t, rr)

		list := decodeBody[goalsResponse](t, env.do(t, http.MethodGet, "/api/goals", ""))
		require.Len(t, list.Goals, 1, "goal listed right after create")
		assert.Equal(t, 1, list.Statistics.GoalCount)
		assert.Equal(t, 1, decodeBody[core.Statistics](t, env.do(t, http.MethodGet, "/api/goals/statistics", "")).GoalCount)

		require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/goals/"+created.ID, "").Code)
		list = decodeBody[goalsResponse](t, env.do(t, http.MethodGet, "/api/goals", ""))
		require.Empty(t, list.Goals, "goal gone right after delete")
	}

	rr := env.do(t, http.MethodPost, "/api/transactions", `{"kind":"expense","amount":"4","description":"Bus"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	txs := decodeBody[transactionsResponse](t, env.do(t, http.MethodGet, "/api/transactions", ""))
	require.Len(t, txs.Transactions, 1)
	assert.True(t, txs.Totals.Expense.Equal(decimal.NewFromInt(4)))
	require.Len(t, txs.Categories, 1)
	assert.Equal(t, "Bus", txs.Categories[0].Name)
}
