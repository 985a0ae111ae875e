package pncp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandes-group/tenderscan/internal/config"
)

func testClient(serverURL string) *Client {
	c := NewClient(config.PNCPConfig{
		BaseURL:         serverURL,
		ConsultationURL: serverURL,
		TimeoutSecs:     5,
		MaxRetries:      3,
		RequestsPerSec:  1000,
		PageSize:        100,
	})
	c.retry.InitialBackoff = time.Millisecond
	c.retry.MaxBackoff = 5 * time.Millisecond
	return c
}

func listingPage(tenders []map[string]any, remaining int) []byte {
	body, _ := json.Marshal(map[string]any{
		"data":             tenders,
		"paginasRestantes": remaining,
	})
	return body
}

func wireTenderJSON(cn string, value float64) map[string]any {
	return map[string]any{
		"numeroControlePNCPCompra": cn,
		"orgaoEntidade": map[string]any{
			"cnpj":        "11222333000144",
			"razaoSocial": "Hospital Municipal",
		},
		"unidadeOrgao": map[string]any{
			"ufSigla":       "SP",
			"municipioNome": "Campinas",
		},
		"objetoCompra":         "Aquisição de curativos",
		"valorTotalEstimado":   value,
		"modalidadeId":         6,
		"anoCompra":            2026,
		"sequencialCompra":     7,
		"dataPublicacaoPncp":   "2026-02-10T08:30:00",
	}
}

func testPartition() Partition {
	return Partition{
		DateFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
		State:    "SP",
	}
}

func TestFetchListingPaginates(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/contratacoes/publicacao", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "20260201", q.Get("dataInicial"))
		assert.Equal(t, "20260207", q.Get("dataFinal"))
		assert.Equal(t, "6", q.Get("codigoModalidadeContratacao"))
		assert.Equal(t, "SP", q.Get("uf"))

		page := q.Get("pagina")
		pagesServed = append(pagesServed, page)
		switch page {
		case "1":
			w.Write(listingPage([]map[string]any{
				wireTenderJSON("cn-1", 10_000),
				wireTenderJSON("cn-2", 20_000),
			}, 1))
		default:
			w.Write(listingPage([]map[string]any{wireTenderJSON("cn-3", 30_000)}, 0))
		}
	}))
	defer srv.Close()

	tenders, err := testClient(srv.URL).FetchListing(context.Background(), testPartition(), 6, 0)
	require.NoError(t, err)
	require.Len(t, tenders, 3)
	assert.Equal(t, []string{"1", "2"}, pagesServed)

	first := tenders[0]
	assert.Equal(t, "cn-1", first.ControlNumber)
	assert.Equal(t, "11222333000144", first.OrgID)
	assert.Equal(t, "Hospital Municipal", first.OrgName)
	assert.Equal(t, "Aquisição de curativos", first.Title)
	assert.Equal(t, "SP", first.State)
	assert.Equal(t, 2026, first.Year)
	assert.Equal(t, 7, first.Sequence)
	assert.False(t, first.PublishedAt.IsZero())
}

func TestFetchListingMaxRecords(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(listingPage([]map[string]any{
			wireTenderJSON("cn-1", 1),
			wireTenderJSON("cn-2", 2),
			wireTenderJSON("cn-3", 3),
		}, 5))
	}))
	defer srv.Close()

	tenders, err := testClient(srv.URL).FetchListing(context.Background(), testPartition(), 6, 2)
	require.NoError(t, err)
	assert.Len(t, tenders, 2)
	assert.Equal(t, 1, requests, "cap reached on the first page, no further fetches")
}

func TestFetchListingEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(listingPage(nil, 0))
	}))
	defer srv.Close()

	tenders, err := testClient(srv.URL).FetchListing(context.Background(), testPartition(), 6, 0)
	require.NoError(t, err)
	assert.Empty(t, tenders)
}

func TestFetchListingRetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(listingPage([]map[string]any{wireTenderJSON("cn-1", 1)}, 0))
	}))
	defer srv.Close()

	tenders, err := testClient(srv.URL).FetchListing(context.Background(), testPartition(), 6, 0)
	require.NoError(t, err)
	assert.Len(t, tenders, 1)
	assert.Equal(t, 2, attempts)
}

func TestFetchItemsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orgaos/11222333000144/compras/2026/7/itens", r.URL.Path)
		items := make([]map[string]any, 5)
		for i := range items {
			items[i] = map[string]any{
				"numeroItem":            i + 1,
				"descricao":             "Curativo " + strconv.Itoa(i+1),
				"materialOuServico":     "M",
				"quantidade":            10.0,
				"valorUnitarioEstimado": 2.5,
			}
		}
		json.NewEncoder(w).Encode(items)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).FetchItems(context.Background(), "11222333000144", 2026, 7, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Number)
	assert.Equal(t, "M", items[0].MaterialOrService)
	assert.InDelta(t, 2.5, items[0].UnitValue, 0.001)
}

func TestFetchItemsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).FetchItems(context.Background(), "11222333000144", 2026, 7, 3)
	require.NoError(t, err, "tenders without published items are not an error")
	assert.Empty(t, items)
}

func TestAuthTokenRefresh(t *testing.T) {
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			logins++
			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "user", req.Login)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + strconv.Itoa(logins)})
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.username = "user"
	c.password = "pass"

	// First token is rejected, the retry logs in again and succeeds.
	_, err := c.FetchItems(context.Background(), "11222333000144", 2026, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, logins)
}

func TestCallsCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(listingPage(nil, 0))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	assert.Zero(t, c.Calls())
	_, err := c.FetchListing(context.Background(), testPartition(), 6, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Calls())
}
