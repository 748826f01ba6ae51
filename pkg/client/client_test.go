package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/client"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/limiter"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/query"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/recorder"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/server"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/store"
)

type testServer struct {
	*httptest.Server
	validator *auth.JWTValidator
	keySecret string
}

func newTestServer(t *testing.T, opts ...func(*server.Options)) *testServer {
	t.Helper()
	l := ledger.New(store.NewMemoryStore())
	rec, err := recorder.New(l)
	require.NoError(t, err)
	engine, err := query.NewEngine(8)
	require.NoError(t, err)

	hash, err := auth.HashAPIKeySecret("s3cret")
	require.NoError(t, err)
	keys, err := auth.NewAPIKeyStore([]auth.APIKey{
		{ID: "inventario", Email: "svc@example.com", Roles: []string{auth.RoleAdmin}, Hash: hash},
	})
	require.NoError(t, err)

	validator := auth.NewJWTValidator("client-test-secret")
	o := server.Options{
		Service:   server.NewLedgerService(l, rec, engine),
		Validator: validator,
		APIKeys:   keys,
	}
	for _, fn := range opts {
		fn(&o)
	}
	ts := httptest.NewServer(server.NewHandler(o))
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, validator: validator, keySecret: "inventario.s3cret"}
}

func (s *testServer) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := s.validator.Issue("u-1", "admin@example.com", roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestClient_RegisterAndRead(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := client.New(ts.URL, client.WithToken(ts.token(t, auth.RoleAdmin)))

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])

	first, err := c.Register(ctx, recorder.TypeCompanyCreated, map[string]any{"nit": "900123456", "nombre": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, ledger.Genesis, first.PreviousHash)

	second, err := c.Register(ctx, recorder.TypeProductCreated, map[string]any{"codigo": "P-1", "nombre": "Tornillo"})
	require.NoError(t, err)
	assert.Equal(t, first.CurrentHash, second.PreviousHash)

	page, err := c.ListRecords(ctx, client.ListOptions{Type: recorder.TypeProductCreated})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	got, err := c.GetRecord(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.CurrentHash, got.CurrentHash)

	res, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, second.CurrentHash, res.HeadHash)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)

	types, err := c.Types(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(recorder.Catalogue()))
}

func TestClient_APIKey(t *testing.T) {
	ts := newTestServer(t)
	c := client.New(ts.URL, client.WithAPIKey(ts.keySecret))

	rec, err := c.Register(context.Background(), recorder.TypeUserCreated, map[string]any{"email": "nuevo@example.com", "role": "externo"})
	require.NoError(t, err)
	assert.Equal(t, "svc@example.com", rec.Actor)
}

func TestClient_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := client.New(ts.URL).Verify(ctx)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.NotEmpty(t, apiErr.RequestID)

	external := client.New(ts.URL, client.WithToken(ts.token(t, auth.RoleExternal)))
	_, err = external.Register(ctx, recorder.TypeCompanyCreated, map[string]any{"nit": "1", "nombre": "x"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	_, err = external.GetRecord(ctx, 42)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = external.ListRecords(ctx, client.ListOptions{Filter: "record.(("})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Bad Request", apiErr.Title)
}

func TestClient_RetryAfter(t *testing.T) {
	ts := newTestServer(t, func(o *server.Options) {
		o.Limiter = limiter.NewInMemoryStore()
		o.RateLimit = limiter.Policy{RPM: 2, Burst: 1}
	})
	c := client.New(ts.URL, client.WithToken(ts.token(t)))

	_, err := c.Types(context.Background())
	require.NoError(t, err)
	_, err = c.Types(context.Background())

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, 30, apiErr.RetryAfter)
}
