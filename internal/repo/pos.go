package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/szarkamarci/modularai/internal/cache"
	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

// POSClient wraps the point-of-sale collaborator APIs: transaction history,
// latest stock snapshots, and the product catalog.
type POSClient struct {
	baseURL          string
	transactionsPath string
	snapshotPath     string
	productsPath     string
	httpClient       *http.Client
	cache            cache.Provider
	snapshotTTL      time.Duration
	catalogTTL       time.Duration
	maxRetries       int
	retryBackoff     time.Duration
}

// POSClientOptions configures a POSClient.
type POSClientOptions struct {
	BaseURL          string
	TransactionsPath string
	SnapshotPath     string
	ProductsPath     string
	Timeout          time.Duration
	Cache            cache.Provider
	SnapshotTTL      time.Duration
	CatalogTTL       time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
}

// NewPOSClient constructs a client targeting the configured POS instance.
func NewPOSClient(opts POSClientOptions) *POSClient {
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &POSClient{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		transactionsPath: opts.TransactionsPath,
		snapshotPath:     opts.SnapshotPath,
		productsPath:     opts.ProductsPath,
		httpClient:       &http.Client{Timeout: opts.Timeout},
		cache:            opts.Cache,
		snapshotTTL:      opts.SnapshotTTL,
		catalogTTL:       opts.CatalogTTL,
		maxRetries:       opts.MaxRetries,
		retryBackoff:     opts.RetryBackoff,
	}
}

// ReadTransactions fetches the point-of-sale events for a product/store pair
// inside [start, end). Transient failures are retried with exponential backoff
// before a SourceUnavailable error surfaces.
func (c *POSClient) ReadTransactions(ctx context.Context, productID, storeID string, start, end time.Time) ([]models.TransactionRecord, error) {
	const op = "pos.ReadTransactions"
	if c == nil || c.baseURL == "" {
		return nil, utils.NewAppError(utils.KindSourceUnavailable, op, "POS base URL not configured", nil)
	}

	payload := map[string]any{
		"product_id": productID,
		"store_id":   storeID,
		"start":      start.UTC().Format(time.RFC3339),
		"end":        end.UTC().Format(time.RFC3339),
	}

	var response struct {
		Transactions []struct {
			Timestamp time.Time `json:"timestamp"`
			Quantity  int       `json:"quantity"`
			UnitPrice string    `json:"unit_price"`
		} `json:"transactions"`
	}

	if err := c.postJSONWithRetry(ctx, op, c.endpoint(c.transactionsPath), payload, &response); err != nil {
		return nil, err
	}

	records := make([]models.TransactionRecord, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		price := decimal.Zero
		if tx.UnitPrice != "" {
			parsed, err := decimal.NewFromString(tx.UnitPrice)
			if err != nil {
				return nil, utils.NewAppError(utils.KindSourceUnavailable, op, fmt.Sprintf("malformed unit price %q", tx.UnitPrice), err)
			}
			price = parsed
		}
		qty := tx.Quantity
		records = append(records, models.TransactionRecord{
			Timestamp: tx.Timestamp,
			ProductID: productID,
			StoreID:   storeID,
			Quantity:  qty,
			UnitPrice: price,
			Amount:    price.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	return records, nil
}

// LatestSnapshot returns the most recent on-hand quantity for a product/store
// pair. A 404 from the collaborator maps to a NotFound error.
func (c *POSClient) LatestSnapshot(ctx context.Context, productID, storeID string) (models.StockSnapshot, error) {
	const op = "pos.LatestSnapshot"
	if c == nil || c.baseURL == "" {
		return models.StockSnapshot{}, utils.NewAppError(utils.KindSourceUnavailable, op, "POS base URL not configured", nil)
	}

	cacheKey := fmt.Sprintf("pos:snapshot:%s:%s", productID, storeID)
	if c.snapshotTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached models.StockSnapshot
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	target := c.endpoint(c.snapshotPath) + "?" + url.Values{
		"product_id": {productID},
		"store_id":   {storeID},
	}.Encode()

	var response struct {
		ProductID  string    `json:"product_id"`
		StoreID    string    `json:"store_id"`
		ObservedAt time.Time `json:"observed_at"`
		Quantity   int       `json:"quantity"`
	}

	if err := c.getJSONWithRetry(ctx, op, target, &response); err != nil {
		return models.StockSnapshot{}, err
	}

	snapshot := models.StockSnapshot{
		ProductID:  response.ProductID,
		StoreID:    response.StoreID,
		ObservedAt: response.ObservedAt,
		Quantity:   response.Quantity,
	}
	if snapshot.ProductID == "" {
		snapshot.ProductID = productID
	}
	if snapshot.StoreID == "" {
		snapshot.StoreID = storeID
	}

	if c.snapshotTTL > 0 {
		if data, err := json.Marshal(snapshot); err == nil {
			_ = c.cache.Set(ctx, cacheKey, data, c.snapshotTTL)
		}
	}
	return snapshot, nil
}

// ListProducts returns the catalog for a store.
func (c *POSClient) ListProducts(ctx context.Context, storeID string) ([]models.Product, error) {
	const op = "pos.ListProducts"
	if c == nil || c.baseURL == "" {
		return nil, utils.NewAppError(utils.KindSourceUnavailable, op, "POS base URL not configured", nil)
	}

	cacheKey := "pos:products:" + storeID
	if c.catalogTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.Product
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	target := c.endpoint(c.productsPath) + "?" + url.Values{"store_id": {storeID}}.Encode()

	var response struct {
		Products []struct {
			ID                string `json:"id"`
			StoreID           string `json:"store_id"`
			Name              string `json:"name"`
			Description       string `json:"description"`
			Category          string `json:"category"`
			Price             string `json:"price"`
			MinStockThreshold int    `json:"min_stock_threshold"`
		} `json:"products"`
	}

	if err := c.getJSONWithRetry(ctx, op, target, &response); err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(response.Products))
	for _, p := range response.Products {
		price := decimal.Zero
		if p.Price != "" {
			parsed, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, utils.NewAppError(utils.KindSourceUnavailable, op, fmt.Sprintf("malformed price %q for product %s", p.Price, p.ID), err)
			}
			price = parsed
		}
		products = append(products, models.Product{
			ID:                p.ID,
			StoreID:           p.StoreID,
			Name:              p.Name,
			Description:       p.Description,
			Category:          p.Category,
			Price:             price,
			MinStockThreshold: p.MinStockThreshold,
		})
	}

	if c.catalogTTL > 0 && len(products) > 0 {
		if data, err := json.Marshal(products); err == nil {
			_ = c.cache.Set(ctx, cacheKey, data, c.catalogTTL)
		}
	}
	return products, nil
}

func (c *POSClient) endpoint(p string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + p
	}
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func (c *POSClient) postJSONWithRetry(ctx context.Context, op, target string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.KindSourceUnavailable, op, "marshal request", err)
	}
	return c.doWithRetry(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *POSClient) getJSONWithRetry(ctx context.Context, op, target string, out any) error {
	return c.doWithRetry(ctx, op, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}, out)
}

// doWithRetry executes the request, retrying transient failures up to
// maxRetries with exponential backoff. NotFound is surfaced immediately.
func (c *POSClient) doWithRetry(ctx context.Context, op string, build func() (*http.Request, error), out any) error {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return utils.NewAppError(utils.KindTimeout, op, "context cancelled during retry", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := build()
		if err != nil {
			return utils.NewAppError(utils.KindSourceUnavailable, op, "build request", err)
		}

		err = c.decodeResponse(op, req, out)
		if err == nil {
			return nil
		}
		if !utils.Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *POSClient) decodeResponse(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return utils.NewAppError(utils.KindTimeout, op, "POS request timed out", err)
		}
		return utils.NewAppError(utils.KindSourceUnavailable, op, "POS request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return utils.NewAppError(utils.KindNotFound, op, "resource not found", nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return utils.NewAppError(utils.KindSourceUnavailable, op, fmt.Sprintf("POS returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.NewAppError(utils.KindSourceUnavailable, op, "decode POS response", err)
	}
	return nil
}
