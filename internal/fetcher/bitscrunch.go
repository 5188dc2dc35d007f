package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/chainwatch/internal/buildconfig"
	"github.com/Harshitk-cp/chainwatch/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.unleashnfts.com/api/v1"

	// Limiter service name. Every HTTP request consumes one permit.
	rateService = "bitscrunch"

	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// RateLimiter gates calls to a named external service.
type RateLimiter interface {
	Acquire(ctx context.Context, service string) error
}

// Client reads on-chain metrics from the bitsCrunch (UnleashNFTs) REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    RateLimiter
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(apiKey, baseURL string, limiter RateLimiter, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    limiter,
		logger:     logger.With(zap.String("component", "bitscrunch")),
		now:        time.Now,
	}
}

// Fetch takes one snapshot of the target. The caller sets TargetKey.
func (c *Client) Fetch(ctx context.Context, target domain.Target, opts domain.FetchOptions) (*domain.MetricsSnapshot, error) {
	snap := domain.NewSnapshot(target.Key(), c.now().UTC())

	var err error
	switch target.Type {
	case domain.TargetWallet:
		err = c.fetchWallet(ctx, target, snap)
	case domain.TargetCollection:
		err = c.fetchCollection(ctx, target, opts, snap)
	case domain.TargetNFT:
		err = c.fetchNFT(ctx, target, snap)
	default:
		err = domain.PermanentFetchError(fmt.Errorf("unsupported target type %q", target.Type))
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("snapshot fetched",
		zap.String("target", snap.TargetKey),
		zap.Int("values", len(snap.Values)),
	)
	return snap, nil
}

type walletMetricsResponse struct {
	Data []struct {
		Wallet     string  `json:"wallet"`
		OutflowETH float64 `json:"outflow_amount_eth"`
		InflowETH  float64 `json:"inflow_amount_eth"`
		TotalTxn   float64 `json:"total_txn"`
		BalanceETH float64 `json:"balance_eth"`
	} `json:"data"`
}

// Wallet totals are lifetime counters; the evaluator diffs them across polls.
// A response without the wallet's row is transient: recording zeros would make
// the next good poll look like the wallet's whole history arrived at once.
func (c *Client) fetchWallet(ctx context.Context, target domain.Target, snap *domain.MetricsSnapshot) error {
	q := url.Values{}
	q.Set("blockchain", string(target.Chain))
	q.Set("wallet", target.Address)
	q.Set("time_range", "all")

	var resp walletMetricsResponse
	if err := c.get(ctx, "/wallet/metrics", q, &resp); err != nil {
		return err
	}

	for _, row := range resp.Data {
		if row.Wallet != "" && !strings.EqualFold(row.Wallet, target.Address) {
			continue
		}
		snap.Values["outgoing_transfer"] = row.OutflowETH
		snap.Values["incoming_transfer"] = row.InflowETH
		snap.Values["transaction_count"] = row.TotalTxn
		snap.Values["balance"] = row.BalanceETH
		return nil
	}
	return domain.TransientFetchError(fmt.Errorf("no wallet metrics returned for %s", target.Address))
}

type collectionAnalyticsResponse struct {
	Data []struct {
		ContractAddress string  `json:"contract_address"`
		Volume          float64 `json:"volume"`
		VolumeChange    float64 `json:"volume_change"`
		Sales           float64 `json:"sales"`
	} `json:"data"`
}

type collectionWashtradeResponse struct {
	Data []struct {
		ContractAddress string  `json:"contract_address"`
		WashtradeVolume float64 `json:"washtrade_volume"`
		TotalVolume     float64 `json:"total_volume"`
	} `json:"data"`
}

func (c *Client) fetchCollection(ctx context.Context, target domain.Target, opts domain.FetchOptions, snap *domain.MetricsSnapshot) error {
	timeRange := opts.TimeRange
	if timeRange == "" {
		timeRange = "24h"
	}

	q := url.Values{}
	q.Set("blockchain", string(target.Chain))
	q.Set("contract_address", target.Address)
	q.Set("time_range", timeRange)
	q.Set("sort_by", "volume")
	q.Set("sort_order", "desc")
	q.Set("limit", "10")

	var analytics collectionAnalyticsResponse
	if err := c.get(ctx, "/nft/collection/analytics", q, &analytics); err != nil {
		return err
	}

	var volume, change, sales float64
	for _, row := range analytics.Data {
		if strings.EqualFold(row.ContractAddress, target.Address) {
			volume, change, sales = row.Volume, row.VolumeChange, row.Sales
			break
		}
	}
	snap.Values["volume"] = volume
	snap.Values["volume_change"] = change
	snap.Values["volume_spike"] = change
	snap.Values["sales"] = sales
	snap.Values["sale_price"] = 0
	if sales > 0 {
		snap.Values["sale_price"] = volume / sales
	}

	if !opts.IncludeWashtrade {
		return nil
	}

	q.Set("sort_by", "washtrade_score")
	var wash collectionWashtradeResponse
	if err := c.get(ctx, "/nft/collection/washtrade", q, &wash); err != nil {
		return err
	}
	snap.Values["washtrade_activity"] = 0
	for _, row := range wash.Data {
		if strings.EqualFold(row.ContractAddress, target.Address) && row.TotalVolume > 0 {
			snap.Values["washtrade_activity"] = row.WashtradeVolume / row.TotalVolume
			break
		}
	}
	return nil
}

type nftPriceEstimateResponse struct {
	Data []struct {
		EstimatedPrice float64 `json:"estimated_price"`
	} `json:"data"`
	EstimatedPrice *float64 `json:"estimated_price"`
}

type nftTransactionsResponse struct {
	Data []struct {
		Buyer    string  `json:"buyer"`
		Receiver string  `json:"receiver"`
		Price    float64 `json:"price"`
	} `json:"data"`
	Pagination struct {
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

func (c *Client) fetchNFT(ctx context.Context, target domain.Target, snap *domain.MetricsSnapshot) error {
	chainID, ok := target.Chain.ID()
	if !ok {
		return domain.PermanentFetchError(fmt.Errorf("unsupported chain %q", target.Chain))
	}
	base := fmt.Sprintf("/nft/%d/%s/%s", chainID, url.PathEscape(target.Address), url.PathEscape(target.TokenID))

	var estimate nftPriceEstimateResponse
	if err := c.get(ctx, base+"/price-estimate", nil, &estimate); err != nil {
		return err
	}
	switch {
	case estimate.EstimatedPrice != nil:
		snap.Values["price_estimate"] = *estimate.EstimatedPrice
	case len(estimate.Data) > 0:
		snap.Values["price_estimate"] = estimate.Data[0].EstimatedPrice
	default:
		snap.Values["price_estimate"] = 0
	}

	q := url.Values{}
	q.Set("sort_by", "timestamp")
	q.Set("sort_order", "desc")
	q.Set("limit", "20")

	var txns nftTransactionsResponse
	if err := c.get(ctx, base+"/transactions", q, &txns); err != nil {
		return err
	}

	count := txns.Pagination.TotalItems
	if count < len(txns.Data) {
		count = len(txns.Data)
	}
	snap.Values["sale_count"] = float64(count)

	// Percent change between the two most recent sale prices.
	snap.Values["price_change"] = 0
	if len(txns.Data) >= 2 && txns.Data[1].Price > 0 {
		snap.Values["price_change"] = (txns.Data[0].Price - txns.Data[1].Price) / txns.Data[1].Price * 100
	}

	seen := make(map[string]struct{})
	buyers := make([]string, 0, len(txns.Data))
	for _, tx := range txns.Data {
		buyer := tx.Buyer
		if buyer == "" {
			buyer = tx.Receiver
		}
		buyer = strings.ToLower(buyer)
		if buyer == "" {
			continue
		}
		if _, dup := seen[buyer]; dup {
			continue
		}
		seen[buyer] = struct{}{}
		buyers = append(buyers, buyer)
	}
	sort.Strings(buyers)
	snap.Sets["buyers"] = buyers
	return nil
}

// get performs one rate-limited GET. Only the permit wait observes ctx
// cancellation; a request already on the wire runs to completion.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, rateService); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
	defer cancel()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PermanentFetchError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("User-Agent", buildconfig.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransientFetchError(fmt.Errorf("GET %s: %w", path, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.PermanentFetchError(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func classifyStatus(path string, status int, body []byte) error {
	cause := fmt.Errorf("GET %s: %s", path, strings.TrimSpace(string(body)))
	if len(body) == 0 {
		cause = fmt.Errorf("GET %s: %s", path, http.StatusText(status))
	}

	var fe *domain.FetchError
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		fe = domain.TransientFetchError(cause)
	} else {
		fe = domain.PermanentFetchError(cause)
	}
	fe.StatusCode = status
	return fe
}

// StatusCode extracts the upstream HTTP status from a fetch error, or 0.
func StatusCode(err error) int {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
