package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const wallet = "0x742d35Cc6bf8e1d6D8aEc8967c96e5e5E2DbDcf5"

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context, service string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if service == rateService {
		l.calls++
	}
	return l.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *countingLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &countingLimiter{}
	c := NewClient("test-key", srv.URL, limiter, zap.NewNop())
	c.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c, limiter
}

func TestFetch_Wallet(t *testing.T) {
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/metrics", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Contains(t, r.Header.Get("User-Agent"), "chainwatch/")
		assert.Equal(t, "ethereum", r.URL.Query().Get("blockchain"))
		assert.Equal(t, wallet, r.URL.Query().Get("wallet"))
		_, _ = w.Write([]byte(`{"data":[{"wallet":"` + wallet + `","outflow_amount_eth":17.6,"inflow_amount_eth":3.25,"total_txn":42,"balance_eth":1.5}]}`))
	})

	target := domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}
	snap, err := c.Fetch(context.Background(), target, domain.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, target.Key(), snap.TargetKey)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), snap.TakenAt)
	assert.Equal(t, 17.6, snap.Values["outgoing_transfer"])
	assert.Equal(t, 3.25, snap.Values["incoming_transfer"])
	assert.Equal(t, 42.0, snap.Values["transaction_count"])
	assert.Equal(t, 1.5, snap.Values["balance"])
	assert.Equal(t, 1, limiter.calls)
}

func TestFetch_WalletMissingRowIsTransient(t *testing.T) {
	for name, body := range map[string]string{
		"empty":         `{"data":[]}`,
		"other wallets": `{"data":[{"wallet":"0x0000000000000000000000000000000000000001","outflow_amount_eth":3}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			snap, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, domain.IsTransient(err))
		})
	}
}

func TestFetch_CollectionWithWashtrade(t *testing.T) {
	const contract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	var paths []string
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/nft/collection/analytics":
			assert.Equal(t, "volume", r.URL.Query().Get("sort_by"))
			_, _ = w.Write([]byte(`{"data":[
				{"contract_address":"0xother","volume":999,"sales":1},
				{"contract_address":"0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d","volume":120,"volume_change":2.5,"sales":40}
			]}`))
		case "/nft/collection/washtrade":
			assert.Equal(t, "washtrade_score", r.URL.Query().Get("sort_by"))
			_, _ = w.Write([]byte(`{"data":[{"contract_address":"` + contract + `","washtrade_volume":30,"total_volume":120}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	target := domain.Target{Type: domain.TargetCollection, Address: contract, Chain: domain.ChainEthereum}
	snap, err := c.Fetch(context.Background(), target, domain.FetchOptions{IncludeWashtrade: true})
	require.NoError(t, err)

	assert.Equal(t, 120.0, snap.Values["volume"])
	assert.Equal(t, 40.0, snap.Values["sales"])
	assert.Equal(t, 3.0, snap.Values["sale_price"])
	assert.Equal(t, 2.5, snap.Values["volume_change"])
	assert.Equal(t, 0.25, snap.Values["washtrade_activity"])
	assert.Len(t, paths, 2)
	assert.Equal(t, 2, limiter.calls)
}

func TestFetch_CollectionSkipsWashtradeByDefault(t *testing.T) {
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nft/collection/analytics", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	snap, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetCollection, Address: "0xabc", Chain: domain.ChainPolygon}, domain.FetchOptions{})
	require.NoError(t, err)
	_, ok := snap.Value("washtrade_activity")
	assert.False(t, ok)
	assert.Zero(t, snap.Values["sale_price"])
	assert.Equal(t, 1, limiter.calls)
}

func TestFetch_NFT(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nft/1/0xabc/7/price-estimate":
			_, _ = w.Write([]byte(`{"data":[{"estimated_price":4.2}]}`))
		case "/nft/1/0xabc/7/transactions":
			_, _ = w.Write([]byte(`{"data":[
				{"buyer":"0xBBB","price":3},
				{"buyer":"0xaaa","price":2},
				{"receiver":"0xbbb","price":1}
			],"pagination":{"total_items":12}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	target := domain.Target{Type: domain.TargetNFT, Address: "0xabc", TokenID: "7", Chain: domain.ChainEthereum}
	snap, err := c.Fetch(context.Background(), target, domain.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4.2, snap.Values["price_estimate"])
	assert.Equal(t, 12.0, snap.Values["sale_count"])
	assert.Equal(t, 50.0, snap.Values["price_change"])
	buyers, ok := snap.Set("buyers")
	require.True(t, ok)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, buyers)
}

func TestFetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestFetch_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient("k", url, nil, zap.NewNop())
	_, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestFetch_MalformedBodyIsPermanent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}

func TestFetch_LimiterCancellation(t *testing.T) {
	called := false
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	limiter.err = context.Canceled

	_, err := c.Fetch(context.Background(), domain.Target{Type: domain.TargetWallet, Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFetch_UnsupportedTarget(t *testing.T) {
	c := NewClient("k", "", nil, zap.NewNop())
	_, err := c.Fetch(context.Background(), domain.Target{Type: "token", Address: wallet, Chain: domain.ChainEthereum}, domain.FetchOptions{})
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
}
