// Package exchange provides core.Adapter implementations: a Binance
// Spot REST adapter for live trading, and an in-memory mock for tests
// and local runs without exchange credentials.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/pkg/apperrors"
	"gridbot/pkg/concurrency"
	gridhttp "gridbot/pkg/http"
	"gridbot/pkg/retry"
)

const defaultSpotBaseURL = "https://api.binance.com"

// binanceSigner implements gridhttp.Signer with Binance's HMAC-SHA256
// query-string signing scheme.
type binanceSigner struct {
	apiKey    config.Secret
	secretKey config.Secret
}

func (s *binanceSigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-MBX-APIKEY", string(s.apiKey))

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	queryString := q.Encode()

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(queryString))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	req.URL.RawQuery = q.Encode()
	return nil
}

// BinanceSpotAdapter implements core.Adapter against the Binance Spot
// REST API. It performs no price discovery of its own: every call is a
// thin, rate-limited, retried transport to the exchange.
type BinanceSpotAdapter struct {
	client  *gridhttp.Client
	limiter *rate.Limiter
	pool    *concurrency.WorkerPool
	logger  core.ILogger

	pair            string
	baseAsset       string
	quoteAsset      string
	fee             decimal.Decimal
	maxOrderCount   int
	priceDecimals   int
	amountDecimals  int
}

// NewBinanceSpotAdapter builds a live adapter for pair (e.g. "BTCUSDT",
// decomposed into baseAsset/quoteAsset for GetAssets).
func NewBinanceSpotAdapter(
	cfg config.ExchangeConfig,
	pair, baseAsset, quoteAsset string,
	maxOrderCount, priceDecimals, amountDecimals int,
	ratePerSecond float64,
	logger core.ILogger,
) *BinanceSpotAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultSpotBaseURL
	}
	signer := &binanceSigner{apiKey: cfg.APIKey, secretKey: cfg.SecretKey}
	client := gridhttp.NewClient(baseURL, 10*time.Second, signer)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "exchange-batch",
		MaxWorkers: 8,
	}, logger)

	return &BinanceSpotAdapter{
		client:         client,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
		pool:           pool,
		logger:         logger.WithField("exchange", "binance_spot"),
		pair:           pair,
		baseAsset:      baseAsset,
		quoteAsset:     quoteAsset,
		fee:            decimal.NewFromFloat(cfg.FeeRate),
		maxOrderCount:  maxOrderCount,
		priceDecimals:  priceDecimals,
		amountDecimals: amountDecimals,
	}
}

func (a *BinanceSpotAdapter) Name() string          { return "binance_spot" }
func (a *BinanceSpotAdapter) Pair() string           { return a.pair }
func (a *BinanceSpotAdapter) Fee() decimal.Decimal   { return a.fee }
func (a *BinanceSpotAdapter) MaxOrderCount() int     { return a.maxOrderCount }
func (a *BinanceSpotAdapter) PriceDecimals() int     { return a.priceDecimals }
func (a *BinanceSpotAdapter) AmountDecimals() int    { return a.amountDecimals }

// IsKnownException classifies the sentinel errors from pkg/apperrors
// as recoverable; everything else is surfaced to the notifier.
func (a *BinanceSpotAdapter) IsKnownException(err error) bool {
	switch {
	case isAny(err, apperrors.ErrNetwork, apperrors.ErrRateLimitExceeded,
		apperrors.ErrExchangeMaintenance, apperrors.ErrSystemOverload,
		apperrors.ErrTimestampOutOfBounds):
		return true
	default:
		return false
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if err == t {
			return true
		}
	}
	return false
}

func (a *BinanceSpotAdapter) wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *BinanceSpotAdapter) doRetried(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, retry.DefaultPolicy, a.IsKnownException, fn)
}

type bookTickerResp struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type priceTickerResp struct {
	Price string `json:"price"`
}

// GetLatestPrices fetches best bid/ask and last trade price.
func (a *BinanceSpotAdapter) GetLatestPrices(ctx context.Context) (core.Ticker, error) {
	if err := a.wait(ctx); err != nil {
		return core.Ticker{}, err
	}

	var book bookTickerResp
	var priceResp priceTickerResp
	err := a.doRetried(ctx, func() error {
		raw, err := a.client.Get(ctx, "/api/v3/ticker/bookTicker", map[string]string{"symbol": a.pair})
		if err != nil {
			return a.mapError(err)
		}
		return json.Unmarshal(raw, &book)
	})
	if err != nil {
		return core.Ticker{}, err
	}
	err = a.doRetried(ctx, func() error {
		raw, err := a.client.Get(ctx, "/api/v3/ticker/price", map[string]string{"symbol": a.pair})
		if err != nil {
			return a.mapError(err)
		}
		return json.Unmarshal(raw, &priceResp)
	})
	if err != nil {
		return core.Ticker{}, err
	}

	bid, _ := decimal.NewFromString(book.BidPrice)
	ask, _ := decimal.NewFromString(book.AskPrice)
	last, _ := decimal.NewFromString(priceResp.Price)

	return core.Ticker{
		Last:     last,
		BestBid:  bid,
		BestAsk:  ask,
		Spread:   ask.Sub(bid),
		MidPrice: bid.Add(ask).Div(decimal.NewFromInt(2)),
	}, nil
}

type balanceEntry struct {
	Asset string `json:"asset"`
	Free  string `json:"free"`
}

type accountResp struct {
	Balances []balanceEntry `json:"balances"`
}

// GetAssets returns the free balance of the pair's base and quote legs.
func (a *BinanceSpotAdapter) GetAssets(ctx context.Context) (core.Assets, error) {
	if err := a.wait(ctx); err != nil {
		return core.Assets{}, err
	}

	var account accountResp
	err := a.doRetried(ctx, func() error {
		raw, err := a.client.Get(ctx, "/api/v3/account", map[string]string{})
		if err != nil {
			return a.mapError(err)
		}
		return json.Unmarshal(raw, &account)
	})
	if err != nil {
		return core.Assets{}, err
	}

	var assets core.Assets
	for _, b := range account.Balances {
		switch b.Asset {
		case a.baseAsset:
			assets.BaseAmount, _ = decimal.NewFromString(b.Free)
		case a.quoteAsset:
			assets.QuoteAmount, _ = decimal.NewFromString(b.Free)
		}
	}
	return assets, nil
}

type orderResp struct {
	OrderID       int64  `json:"orderId"`
	Status        string `json:"status"`
	TransactTime  int64  `json:"transactTime"`
}

// CreateOrder submits a limit order. Binance rejects orders with
// PRICE_FILTER/LOT_SIZE violations via code -1013/-1111, mapped by
// mapError to ErrInvalidOrderParameter; CreateOrder returns that as an
// InvalidPriceError, which GridBot force-cancels per spec.md §4.6.
func (a *BinanceSpotAdapter) CreateOrder(ctx context.Context, req core.OrderRequest) (core.OrderAck, error) {
	if err := a.wait(ctx); err != nil {
		return core.OrderAck{}, err
	}

	side := "BUY"
	if req.Side == core.SideSell {
		side = "SELL"
	}
	params := map[string]string{
		"symbol":           a.pair,
		"side":             side,
		"type":             "LIMIT",
		"timeInForce":      "GTC",
		"quantity":         req.Amount.String(),
		"price":            req.Price.String(),
		"newClientOrderId": req.ClientOrderID,
	}
	if req.PostOnly {
		params["timeInForce"] = "GTX"
	}

	var order orderResp
	err := a.doRetried(ctx, func() error {
		raw, err := a.client.Post(ctx, "/api/v3/order?"+encodeParams(params), nil)
		if err != nil {
			return a.mapError(err)
		}
		return json.Unmarshal(raw, &order)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidOrderParameter) {
			return core.OrderAck{}, &apperrors.InvalidPriceError{Price: req.Price.String(), Cause: err}
		}
		return core.OrderAck{}, err
	}
	if order.Status == "REJECTED" || order.Status == "EXPIRED" {
		return core.OrderAck{}, &apperrors.InvalidPriceError{Price: req.Price.String(), Cause: fmt.Errorf("order status %s", order.Status)}
	}

	return core.OrderAck{
		ExchangeOrderID: strconv.FormatInt(order.OrderID, 10),
		OrderedAt:       time.UnixMilli(order.TransactTime),
	}, nil
}

// CancelOrders batch-cancels by fanning out individual DELETE calls
// across the shared worker pool (spec.md §11.2: batch fan-out only,
// never for sync_and_adjust's own control flow).
func (a *BinanceSpotAdapter) CancelOrders(ctx context.Context, exchangeOrderIDs []string) ([]core.CancelResult, error) {
	results := make([]core.CancelResult, len(exchangeOrderIDs))
	var wg sync.WaitGroup
	for i, id := range exchangeOrderIDs {
		wg.Add(1)
		i, id := i, id
		_ = a.pool.Submit(func() {
			defer wg.Done()
			if err := a.wait(ctx); err != nil {
				return
			}
			var order orderResp
			err := a.doRetried(ctx, func() error {
				raw, err := a.client.Delete(ctx, "/api/v3/order", map[string]string{"symbol": a.pair, "orderId": id})
				if err != nil {
					return a.mapError(err)
				}
				return json.Unmarshal(raw, &order)
			})
			results[i] = core.CancelResult{
				ExchangeOrderID: id,
				Cancelled:       err == nil && (order.Status == "CANCELED" || order.Status == "FILLED"),
			}
		})
	}
	wg.Wait()
	return results, nil
}

// GetOrdersData batch-fetches order status, fanned out the same way as
// CancelOrders.
func (a *BinanceSpotAdapter) GetOrdersData(ctx context.Context, exchangeOrderIDs []string) ([]core.OrderStatusRecord, error) {
	results := make([]core.OrderStatusRecord, len(exchangeOrderIDs))
	var wg sync.WaitGroup
	for i, id := range exchangeOrderIDs {
		wg.Add(1)
		i, id := i, id
		_ = a.pool.Submit(func() {
			defer wg.Done()
			if err := a.wait(ctx); err != nil {
				return
			}
			var order struct {
				OrderID   int64  `json:"orderId"`
				Status    string `json:"status"`
				Price     string `json:"price"`
				UpdateTime int64 `json:"updateTime"`
			}
			err := a.doRetried(ctx, func() error {
				raw, err := a.client.Get(ctx, "/api/v3/order", map[string]string{"symbol": a.pair, "orderId": id})
				if err != nil {
					return a.mapError(err)
				}
				return json.Unmarshal(raw, &order)
			})
			if err != nil {
				return
			}
			avgPrice, _ := decimal.NewFromString(order.Price)
			results[i] = core.OrderStatusRecord{
				ExchangeOrderID: id,
				FullyFilled:     order.Status == "FILLED",
				Cancelled:       order.Status == "CANCELED" || order.Status == "EXPIRED" || order.Status == "REJECTED",
				AveragePrice:    avgPrice,
				ExecutedAt:      time.UnixMilli(order.UpdateTime),
			}
		})
	}
	wg.Wait()
	return results, nil
}

func (a *BinanceSpotAdapter) mapError(err error) error {
	var apiErr *gridhttp.APIError
	if !asAPIError(err, &apiErr) {
		return apperrors.ErrNetwork
	}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if jsonErr := json.Unmarshal(apiErr.Body, &body); jsonErr != nil {
		return fmt.Errorf("binance spot error (unmarshal failed): %s", string(apiErr.Body))
	}

	switch body.Code {
	case -2015:
		return apperrors.ErrAuthenticationFailed
	case -1013, -1111:
		return apperrors.ErrInvalidOrderParameter
	case -2010:
		return apperrors.ErrInsufficientFunds
	case -2011:
		return apperrors.ErrOrderNotFound
	case -1003:
		return apperrors.ErrRateLimitExceeded
	case -1021:
		return apperrors.ErrTimestampOutOfBounds
	case -2021:
		return &apperrors.ExceedOrderLimitError{}
	}
	return fmt.Errorf("binance spot error %d: %s", body.Code, body.Msg)
}

func asAPIError(err error, target **gridhttp.APIError) bool {
	apiErr, ok := err.(*gridhttp.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

func encodeParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}
