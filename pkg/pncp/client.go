// Package pncp is the HTTP client for the Brazilian public procurement
// registry (Portal Nacional de Contratações Públicas). Listings come from the
// public consultation API; item and detail endpoints use bearer tokens
// obtained through the login endpoint when credentials are configured.
package pncp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fernandes-group/tenderscan/internal/config"
	"github.com/fernandes-group/tenderscan/internal/model"
	"github.com/fernandes-group/tenderscan/internal/resilience"
)

const (
	loginPath   = "/v1/usuarios/login"
	maxPageSize = 500

	// Tokens last about an hour; refresh a little early so an in-flight
	// request never straddles the expiry.
	tokenLifetime     = time.Hour
	tokenExpiryBuffer = 5 * time.Minute
)

// Client talks to the PNCP registry. Safe for concurrent use; every request
// goes through the shared adaptive rate limiter.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	consultationURL string
	username        string
	password        string
	pageSize        int
	limiter         *resilience.AdaptiveLimiter
	retry           resilience.RetryConfig

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	calls atomic.Int64
}

// NewClient builds a registry client from configuration.
func NewClient(cfg config.PNCPConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = 100
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         cfg.BaseURL,
		consultationURL: cfg.ConsultationURL,
		username:        cfg.Username,
		password:        cfg.Password,
		pageSize:        pageSize,
		limiter:         resilience.NewAdaptiveLimiter(cfg.RequestsPerSec),
		retry:           retry,
	}
}

// Calls returns the cumulative number of HTTP requests issued. The engine
// snapshots this around each stage to attribute API spend.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// FetchListing pages through the publication listing for one modality within
// a partition, up to maxRecords tenders. A failed page ends the walk with
// whatever was collected so far; the caller decides whether partial data is
// acceptable.
func (c *Client) FetchListing(ctx context.Context, p Partition, modality, maxRecords int) ([]model.Tender, error) {
	var tenders []model.Tender
	page := 1

	for {
		params := url.Values{}
		params.Set("dataInicial", p.DateFrom.Format("20060102"))
		params.Set("dataFinal", p.DateTo.Format("20060102"))
		params.Set("codigoModalidadeContratacao", strconv.Itoa(modality))
		params.Set("pagina", strconv.Itoa(page))
		params.Set("tamanhoPagina", strconv.Itoa(c.pageSize))
		if p.State != "" {
			params.Set("uf", p.State)
		}

		reqURL := c.consultationURL + "/v1/contratacoes/publicacao?" + params.Encode()
		resp, err := resilience.Retry(ctx, c.retry, "pncp.listing",
			func(ctx context.Context) (listingResponse, error) {
				var out listingResponse
				err := c.doJSON(ctx, http.MethodGet, reqURL, nil, false, &out)
				return out, err
			})
		if err != nil {
			if len(tenders) > 0 {
				zap.L().Warn("listing page failed, keeping partial results",
					zap.Int("modality", modality), zap.Int("page", page), zap.Error(err))
				return tenders, nil
			}
			return nil, eris.Wrapf(err, "pncp: fetch listing modality %d", modality)
		}

		for _, w := range resp.Data {
			tenders = append(tenders, w.toModel())
			if maxRecords > 0 && len(tenders) >= maxRecords {
				return tenders, nil
			}
		}

		if resp.PaginasRestantes <= 0 || len(resp.Data) == 0 {
			return tenders, nil
		}
		page++
	}
}

// FetchItems returns up to limit line items for one tender.
func (c *Client) FetchItems(ctx context.Context, orgID string, year, sequence, limit int) ([]model.Item, error) {
	reqURL := fmt.Sprintf("%s/v1/orgaos/%s/compras/%d/%d/itens", c.baseURL, url.PathEscape(orgID), year, sequence)

	wire, err := resilience.Retry(ctx, c.retry, "pncp.items",
		func(ctx context.Context) ([]wireItem, error) {
			var out []wireItem
			err := c.doAuthed(ctx, http.MethodGet, reqURL, &out)
			return out, err
		})
	if err != nil {
		return nil, eris.Wrapf(err, "pncp: fetch items %s/%d/%d", orgID, year, sequence)
	}

	items := make([]model.Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toModel())
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// FetchDetail returns the full record for one tender.
func (c *Client) FetchDetail(ctx context.Context, orgID string, year, sequence int) (model.Tender, error) {
	reqURL := fmt.Sprintf("%s/v1/orgaos/%s/compras/%d/%d", c.baseURL, url.PathEscape(orgID), year, sequence)

	wire, err := resilience.Retry(ctx, c.retry, "pncp.detail",
		func(ctx context.Context) (wireTender, error) {
			var out wireTender
			err := c.doAuthed(ctx, http.MethodGet, reqURL, &out)
			return out, err
		})
	if err != nil {
		return model.Tender{}, eris.Wrapf(err, "pncp: fetch detail %s/%d/%d", orgID, year, sequence)
	}
	return wire.toModel(), nil
}

// doAuthed runs one request against the management API. A 401 drops the
// cached token so the retry layer logs in again on the next attempt.
func (c *Client) doAuthed(ctx context.Context, method, reqURL string, out any) error {
	err := c.doJSON(ctx, method, reqURL, nil, true, out)
	if err != nil {
		var re *resilience.Error
		if errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
	}
	return err
}

// doJSON performs one rate-limited request and decodes the response body.
// authed requests carry a bearer token when credentials are configured.
func (c *Client) doJSON(ctx context.Context, method, reqURL string, body any, authed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "pncp: rate limiter wait")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "pncp: marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return eris.Wrap(err, "pncp: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.username != "" {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.calls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return resilience.NewError(resilience.KindTransient, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resilience.NewError(resilience.KindTransient, resp.StatusCode,
			eris.New("pncp: unauthorized"))
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.OnThrottle()
		return resilience.NewError(resilience.KindRateLimited, resp.StatusCode,
			eris.New("pncp: rate limited"))
	case resilience.TransientStatus(resp.StatusCode):
		return resilience.NewError(resilience.KindTransient, resp.StatusCode,
			eris.Errorf("pncp: server error %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		// Tenders without items answer 204 or 404; treat as an empty result.
		c.limiter.OnSuccess()
		return nil
	case resp.StatusCode != http.StatusOK:
		return resilience.NewError(resilience.KindClassification, resp.StatusCode,
			eris.Errorf("pncp: unexpected status %d", resp.StatusCode))
	}

	c.limiter.OnSuccess()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.NewError(resilience.KindClassification, resp.StatusCode,
			eris.Wrap(err, "pncp: decode response"))
	}
	return nil
}

// ensureToken returns a valid bearer token, logging in when the cached one is
// missing or close to expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > tokenExpiryBuffer {
		return c.token, nil
	}

	var login loginResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+loginPath,
		loginRequest{Login: c.username, Senha: c.password}, false, &login)
	if err != nil {
		return "", eris.Wrap(err, "pncp: login")
	}

	token := login.Token
	if token == "" {
		token = login.AccessToken
	}
	if token == "" {
		return "", eris.New("pncp: login response carried no token")
	}

	c.token = token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	zap.L().Info("authenticated with registry")
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}
