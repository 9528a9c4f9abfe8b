package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windingtree/orgid-migrator/internal/api/handler"
	"github.com/windingtree/orgid-migrator/internal/api/router"
	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/dedup"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/jobstore"
	"github.com/windingtree/orgid-migrator/internal/orgid"
	"github.com/windingtree/orgid-migrator/internal/queue"
	"github.com/windingtree/orgid-migrator/internal/request"
	"github.com/windingtree/orgid-migrator/internal/status"
	"github.com/windingtree/orgid-migrator/internal/validate"
	"github.com/windingtree/orgid-migrator/internal/vc"
	"github.com/windingtree/orgid-migrator/internal/vc/vctest"
)

const orgIDHex = "0x5a3dfb36da60cb60b3908e5ed5b9f8a6f7d45a1e43b76f6ae129712acf66bd34"

// publisherFunc adapts a function to the queue.Publisher interface.
type publisherFunc func(body []byte) error

func (f publisherFunc) Publish(_ context.Context, body []byte, _ string) error { return f(body) }

type env struct {
	router  *gin.Engine
	did     string
	body    map[string]any
	content *content.MemoryStore
}

func newEnv(t *testing.T, environment string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, owner := vctest.NewKey(t)
	did := "did:orgid:100:" + orgIDHex

	source := chain.NewMockSource()
	source.Add(chain.OrgIDRecord{OrgID: orgIDHex, Owner: owner.Hex(), IsActive: true})

	registry := chain.NewRegistry(chain.NewMockGateway(100))
	jobs := jobstore.NewMemoryStore()
	index := dedup.NewMemoryIndex()
	store := content.NewMemoryStore()
	projector := status.NewProjector(index, jobs, slog.Default())
	jobQueue := queue.New(jobs, publisherFunc(func(_ []byte) error { return nil }), 3, slog.Default())

	requests := request.NewService(request.Config{
		Validator:   validate.NewEngine(source, registry, slog.Default()),
		Verifier:    vc.NewEIP191Verifier(),
		Source:      source,
		SourceChain: 4,
		Index:       index,
		Queue:       jobQueue,
		Jobs:        jobs,
		Projector:   projector,
		Logger:      slog.Default(),
	})
	dids := orgid.NewService(source, projector, store, slog.Default())

	deps := &handler.Dependencies{
		Logger:      slog.Default(),
		Requests:    requests,
		DIDs:        dids,
		Content:     store,
		Environment: environment,
		Version:     "test",
	}

	credential := vctest.Sign(t, key, vctest.Options{
		SubjectDID:          did,
		BlockchainAccountID: vc.AccountID(4, owner),
	})

	return &env{
		router: router.SetupRouter(deps, nil),
		did:    did,
		body: map[string]any{
			"did":     did,
			"chain":   100,
			"orgIdVc": credential,
		},
		content: store,
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRequestEndpoint(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodPost, "/api/v1/requests", e.body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st domain.RequestStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, e.did, st.DID)
	assert.Equal(t, domain.StateRequested, st.State)
	assert.NotEmpty(t, st.ID)

	// Second submission is refused.
	rec = e.do(t, http.MethodPost, "/api/v1/requests", e.body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicated request")

	// Status by job id and by DID agree.
	rec = e.do(t, http.MethodGet, "/api/v1/requests/"+st.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/requests/did/"+e.did, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var byDID domain.RequestStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byDID))
	assert.Equal(t, st.ID, byDID.ID)
}

func TestCreateRequestEndpointRejectsBadBody(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodPost, "/api/v1/requests", map[string]any{"did": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestGetRequestUnknownID(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodGet, "/api/v1/requests/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRequestByDIDReadyWhenUnknown(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodGet, "/api/v1/requests/did/"+e.did, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"ready"`)
}

func TestUploadFileEndpoint(t *testing.T) {
	e := newEnv(t, "test")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "logo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x01})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "memory://bafytest0001")
	assert.Equal(t, "logo.png", e.content.Names["bafytest0001"])
}

func TestUploadFileEndpointWithoutFile(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodPost, "/api/v1/files", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not been uploaded")
}

func TestUploadFileByURIEndpoint(t *testing.T) {
	e := newEnv(t, "test")
	e.content.Documents["https://example.com/logo"] = []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}

	rec := e.do(t, http.MethodPost, "/api/v1/files/uri", map[string]any{"uri": "https://example.com/logo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var uploaded struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.Equal(t, "memory://bafytest0001", uploaded.URL)

	// The sniffed extension names the pinned file.
	name := e.content.Names["bafytest0001"]
	assert.Contains(t, name, ".jpg")
}

func TestUploadFileByURIRejectsNonImage(t *testing.T) {
	e := newEnv(t, "test")
	e.content.Documents["https://example.com/doc"] = []byte("just text")

	rec := e.do(t, http.MethodPost, "/api/v1/files/uri", map[string]any{"uri": "https://example.com/doc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported file type")
}

func TestResetRefusedInProduction(t *testing.T) {
	e := newEnv(t, "production")

	rec := e.do(t, http.MethodPost, "/api/v1/admin/reset", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not allowed in production")
}

func TestResetClearsState(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodPost, "/api/v1/requests", e.body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/admin/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The DID is ready again and can be resubmitted.
	rec = e.do(t, http.MethodGet, "/api/v1/requests/did/"+e.did, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"ready"`)

	rec = e.do(t, http.MethodPost, "/api/v1/requests", e.body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOwnedEndpoint(t *testing.T) {
	e := newEnv(t, "test")

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/dids/%s", "not-an-address"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
