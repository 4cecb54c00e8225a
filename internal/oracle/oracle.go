// Package oracle calls an external decision service that plays the role of
// agent judgment: which postings a worker applies to, which offer a worker
// accepts, and what a household buys. Responses are cached briefly because
// agents are often polled several times within one simulated month.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/model"
)

// ErrUnavailable is returned when the decision service cannot be reached or
// answers with a non-200 status.
var ErrUnavailable = errors.New("oracle: decision service unavailable")

// Client talks to one decision service endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *gocache.Cache
}

// NewClient builds a client for the given base URL. Responses are cached
// for ttl.
func NewClient(baseURL string, ttl time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// PurchaseIntent is one line of a household's shopping plan.
type PurchaseIntent struct {
	SellerID  string          `json:"seller_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (c *Client) post(ctx context.Context, path, cacheKey string, req, resp any) error {
	if cached, ok := c.cache.Get(cacheKey); ok {
		return json.Unmarshal(cached.([]byte), resp)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("oracle: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oracle: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(httpResp.Body); err != nil {
		return fmt.Errorf("oracle: read response: %w", err)
	}
	if err := json.Unmarshal(buf.Bytes(), resp); err != nil {
		return fmt.Errorf("oracle: decode response: %w", err)
	}
	c.cache.SetDefault(cacheKey, buf.Bytes())
	return nil
}

// JobChoices asks which of the open postings the worker should apply to.
func (c *Client) JobChoices(ctx context.Context, month int, w model.WorkerProfile, jobs []model.Job) ([]string, error) {
	req := struct {
		Month  int                 `json:"month"`
		Worker model.WorkerProfile `json:"worker"`
		Jobs   []model.Job         `json:"jobs"`
	}{month, w, jobs}
	var resp struct {
		ApplyJobIDs []string `json:"apply_job_ids"`
	}
	key := fmt.Sprintf("apply/%d/%s", month, w.WorkerKey())
	if err := c.post(ctx, "/decide/applications", key, req, &resp); err != nil {
		return nil, err
	}
	return resp.ApplyJobIDs, nil
}

// AcceptOffer asks which pending offer the worker should take. An empty job
// ID means decline all.
func (c *Client) AcceptOffer(ctx context.Context, month int, workerKey string, offers []model.Offer) (string, error) {
	req := struct {
		Month     int           `json:"month"`
		WorkerKey string        `json:"worker_key"`
		Offers    []model.Offer `json:"offers"`
	}{month, workerKey, offers}
	var resp struct {
		AcceptJobID string `json:"accept_job_id"`
	}
	key := fmt.Sprintf("accept/%d/%s", month, workerKey)
	if err := c.post(ctx, "/decide/offer", key, req, &resp); err != nil {
		return "", err
	}
	return resp.AcceptJobID, nil
}

// PurchasePlan asks what the household buys this month given the catalog.
func (c *Client) PurchasePlan(ctx context.Context, month int, buyerID string, budget decimal.Decimal, catalog []model.Product) ([]PurchaseIntent, error) {
	req := struct {
		Month   int             `json:"month"`
		BuyerID string          `json:"buyer_id"`
		Budget  decimal.Decimal `json:"budget"`
		Catalog []model.Product `json:"catalog"`
	}{month, buyerID, budget, catalog}
	var resp struct {
		Purchases []PurchaseIntent `json:"purchases"`
	}
	key := fmt.Sprintf("purchases/%d/%s", month, buyerID)
	if err := c.post(ctx, "/decide/purchases", key, req, &resp); err != nil {
		return nil, err
	}
	return resp.Purchases, nil
}
