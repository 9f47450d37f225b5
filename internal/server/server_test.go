package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	assemblydomain "github.com/finanze/finanze/internal/assembly/domain"
	"github.com/finanze/finanze/internal/config"
	credentialdomain "github.com/finanze/finanze/internal/credential/domain"
	credentialrepo "github.com/finanze/finanze/internal/credential/repository"
	"github.com/finanze/finanze/internal/entity"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	exchangedomain "github.com/finanze/finanze/internal/exchange/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubFetchService struct {
	runFn        func(ctx context.Context, req fetchdomain.Request) (fetchdomain.Result, error)
	connectFn    func(ctx context.Context, id uuid.UUID, creds entitydomain.Credentials, opts fetchdomain.LoginOptions) (fetchdomain.ConnectResult, error)
	disconnectFn func(ctx context.Context, id uuid.UUID) error
}

func (s *stubFetchService) Run(ctx context.Context, req fetchdomain.Request) (fetchdomain.Result, error) {
	if s.runFn != nil {
		return s.runFn(ctx, req)
	}
	return fetchdomain.Result{Code: fetchdomain.ResultCompleted, Entities: []fetchdomain.EntityResult{}}, nil
}

func (s *stubFetchService) Connect(ctx context.Context, id uuid.UUID, creds entitydomain.Credentials, opts fetchdomain.LoginOptions) (fetchdomain.ConnectResult, error) {
	if s.connectFn != nil {
		return s.connectFn(ctx, id, creds, opts)
	}
	return fetchdomain.ConnectResult{Code: entitydomain.LoginOK}, nil
}

func (s *stubFetchService) Disconnect(ctx context.Context, id uuid.UUID) error {
	if s.disconnectFn != nil {
		return s.disconnectFn(ctx, id)
	}
	return nil
}

type stubAssembly struct {
	fn func(ctx context.Context, currency string) (assemblydomain.GlobalPosition, error)
}

func (s *stubAssembly) Assemble(ctx context.Context, currency string) (assemblydomain.GlobalPosition, error) {
	if s.fn != nil {
		return s.fn(ctx, currency)
	}
	return assemblydomain.GlobalPosition{Currency: currency, Entities: []assemblydomain.EntityPosition{}}, nil
}

type stubExchange struct {
	matrixFn func(ctx context.Context, allowCached bool) (exchangedomain.Rates, error)
}

func (s *stubExchange) AvailableCurrencies(context.Context) (map[string]string, error) {
	return map[string]string{"eur": "Euro"}, nil
}

func (s *stubExchange) Matrix(ctx context.Context, allowCached bool) (exchangedomain.Rates, error) {
	if s.matrixFn != nil {
		return s.matrixFn(ctx, allowCached)
	}
	return exchangedomain.Rates{Matrix: map[string]map[string]decimal.Decimal{}}, nil
}

func (s *stubExchange) CommodityPrice(context.Context, exchangedomain.CommodityKind) (*exchangedomain.CommodityRate, error) {
	return nil, exchangedomain.ErrCommodityUnavailable
}

type fixedConnector struct {
	ent entitydomain.Entity
}

func (c *fixedConnector) Entity() entitydomain.Entity { return c.ent }

func (c *fixedConnector) CredentialFields() []string { return []string{"user", "password"} }

func (c *fixedConnector) Login(context.Context, entitydomain.Credentials, entitydomain.LoginParams) (entitydomain.LoginResult, error) {
	return entitydomain.LoginResult{Code: entitydomain.LoginOK}, nil
}

func (c *fixedConnector) Fetch(context.Context, json.RawMessage, entitydomain.Feature, entitydomain.FetchOptions) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (c *fixedConnector) Disconnect(context.Context) {}

type serverFixture struct {
	server *Server
	db     *gorm.DB
	fetch  *stubFetchService
	asm    *stubAssembly
	exch   *stubExchange
}

func newTestServer(t *testing.T, conns ...entitydomain.Connector) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&credentialdomain.Record{}))

	f := &serverFixture{
		db:    db,
		fetch: &stubFetchService{},
		asm:   &stubAssembly{},
		exch:  &stubExchange{},
	}
	f.server = NewServer(ServerParams{
		Gin:         NewEngine(),
		Cfg:         config.Config{HTTPAddr: ":0"},
		DB:          db,
		FetchSvc:    f.fetch,
		AssemblySvc: f.asm,
		Exchange:    f.exch,
		Registry:    entity.NewRegistry(conns),
		Credentials: credentialrepo.Provide(),
		Scrape:      config.NewStaticScrapeConfigHolder(config.DefaultScrapeConfig()),
	})
	return f
}

func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestRunFetchHandler(t *testing.T) {
	f := newTestServer(t)

	t.Run("empty body runs everything", func(t *testing.T) {
		var captured fetchdomain.Request
		f.fetch.runFn = func(_ context.Context, req fetchdomain.Request) (fetchdomain.Result, error) {
			captured = req
			return fetchdomain.Result{Code: fetchdomain.ResultNoOp, Entities: []fetchdomain.EntityResult{}}, nil
		}

		rec := f.do(http.MethodPost, "/fetch", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, captured.EntityIDs)
		assert.Empty(t, captured.Features)
	})

	t.Run("parses request fields", func(t *testing.T) {
		id := uuid.New()
		var captured fetchdomain.Request
		f.fetch.runFn = func(_ context.Context, req fetchdomain.Request) (fetchdomain.Result, error) {
			captured = req
			return fetchdomain.Result{Code: fetchdomain.ResultCompleted}, nil
		}

		body := `{"entity_ids":["` + id.String() + `"],"features":["positions"],"deep":true,"force":true,"two_factor_code":"123456"}`
		rec := f.do(http.MethodPost, "/fetch", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, captured.EntityIDs, 1)
		assert.Equal(t, id, captured.EntityIDs[0])
		assert.Equal(t, []entitydomain.Feature{entitydomain.FeaturePositions}, captured.Features)
		assert.True(t, captured.Deep)
		assert.True(t, captured.Force)
		assert.Equal(t, "123456", captured.TwoFactorCode)
	})

	t.Run("invalid entity id", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/fetch", `{"entity_ids":["nope"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown feature", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/fetch", `{"features":["bogus"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown entity from service", func(t *testing.T) {
		f.fetch.runFn = func(context.Context, fetchdomain.Request) (fetchdomain.Result, error) {
			return fetchdomain.Result{}, fetchdomain.ErrUnknownEntity
		}
		rec := f.do(http.MethodPost, "/fetch", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetPositionHandler(t *testing.T) {
	f := newTestServer(t)

	t.Run("defaults to reporting currency", func(t *testing.T) {
		var captured string
		f.asm.fn = func(_ context.Context, currency string) (assemblydomain.GlobalPosition, error) {
			captured = currency
			return assemblydomain.GlobalPosition{Currency: currency}, nil
		}
		rec := f.do(http.MethodGet, "/position", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "EUR", captured)
	})

	t.Run("explicit currency", func(t *testing.T) {
		var captured string
		f.asm.fn = func(_ context.Context, currency string) (assemblydomain.GlobalPosition, error) {
			captured = currency
			return assemblydomain.GlobalPosition{Currency: currency}, nil
		}
		rec := f.do(http.MethodGet, "/position?currency=usd", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "USD", captured)
	})

	t.Run("rates unavailable", func(t *testing.T) {
		f.asm.fn = func(context.Context, string) (assemblydomain.GlobalPosition, error) {
			return assemblydomain.GlobalPosition{}, exchangedomain.ErrRatesUnavailable
		}
		rec := f.do(http.MethodGet, "/position", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetExchangeRatesHandler(t *testing.T) {
	f := newTestServer(t)

	t.Run("cached flag forwarded", func(t *testing.T) {
		var captured bool
		f.exch.matrixFn = func(_ context.Context, allowCached bool) (exchangedomain.Rates, error) {
			captured = allowCached
			return exchangedomain.Rates{}, nil
		}
		rec := f.do(http.MethodGet, "/exchange-rates?cached=false", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, captured)
	})

	t.Run("invalid cached flag", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/exchange-rates?cached=maybe", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListAvailableEntitiesHandler(t *testing.T) {
	conn := &fixedConnector{ent: entitydomain.Entity{
		ID:       uuid.New(),
		Name:     "Bank",
		Type:     entitydomain.EntityTypeBank,
		Features: []entitydomain.Feature{entitydomain.FeaturePositions},
	}}
	f := newTestServer(t, conn)

	rec := f.do(http.MethodGet, "/entities/available", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Entities []availableEntity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Entities, 1)
	assert.False(t, payload.Entities[0].Connected)
	assert.Equal(t, []string{"user", "password"}, payload.Entities[0].CredentialFields)

	// Stored credentials flip the connected flag.
	require.NoError(t, credentialrepo.Provide().Put(context.Background(), f.db, conn.ent.ID, []byte(`{}`), time.Now().UTC()))
	rec = f.do(http.MethodGet, "/entities/available", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.True(t, payload.Entities[0].Connected)
}

func TestConnectEntityHandler(t *testing.T) {
	f := newTestServer(t)
	id := uuid.New()

	t.Run("ok", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/entity/"+id.String()+"/credentials", `{"credentials":{"user":"u","password":"p"}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown entity", func(t *testing.T) {
		f.fetch.connectFn = func(context.Context, uuid.UUID, entitydomain.Credentials, fetchdomain.LoginOptions) (fetchdomain.ConnectResult, error) {
			return fetchdomain.ConnectResult{}, fetchdomain.ErrUnknownEntity
		}
		rec := f.do(http.MethodPost, "/entity/"+id.String()+"/credentials", `{"credentials":{}}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		f.fetch.connectFn = func(context.Context, uuid.UUID, entitydomain.Credentials, fetchdomain.LoginOptions) (fetchdomain.ConnectResult, error) {
			return fetchdomain.ConnectResult{}, fetchdomain.ErrMissingFields
		}
		rec := f.do(http.MethodPost, "/entity/"+id.String()+"/credentials", `{"credentials":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/entity/nope/credentials", `{"credentials":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDisconnectEntityHandler(t *testing.T) {
	f := newTestServer(t)
	id := uuid.New()

	t.Run("ok", func(t *testing.T) {
		rec := f.do(http.MethodDelete, "/entity/"+id.String()+"/session", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("unknown entity", func(t *testing.T) {
		f.fetch.disconnectFn = func(context.Context, uuid.UUID) error {
			return fetchdomain.ErrUnknownEntity
		}
		rec := f.do(http.MethodDelete, "/entity/"+id.String()+"/session", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
