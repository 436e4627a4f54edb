package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/pipeline"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/internal/service"
	"pdf-faq-go/internal/vectorindex"
	"pdf-faq-go/pkg/embedding"
	"pdf-faq-go/pkg/storage"
	"pdf-faq-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resume = "Max Mustermann ist Softwareentwickler. Er wohnt in der Hauptstraße 5, 10115 Berlin. " +
	"Seine E-Mail ist max@example.de und er ist erreichbar unter +49 30 1234567."

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Hint    string          `json:"hint"`
}

type apiFixture struct {
	router *gin.Engine
	queue  *pipeline.InlineQueue
	store  *repository.MemoryRecordStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	objects, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	files, err := vectorindex.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := repository.NewMemoryRecordStore()
	embedder := embedding.NewHashingClient("test", 64)
	indexes := vectorindex.NewManager(vectorindex.NewRepository(files), store, embedder.Dimension())

	processor := pipeline.NewProcessor(objects, pipeline.NewExtractor(nil), pipeline.NewChunker(1000, 200), embedder, store, indexes, nil)
	queue := pipeline.NewInlineQueue(processor, 1)
	t.Cleanup(queue.Close)

	jwtManager := token.NewJWTManager("test-secret", 1)
	retrieval := service.NewRetrievalService(embedder, indexes, store)
	router := SetupRouter(RouterDeps{
		UserService:     service.NewUserService(repository.NewMemoryUserRepository(), jwtManager),
		DocumentService: service.NewDocumentService(store, objects, queue, indexes, nil, false),
		QAService:       service.NewQAService(store, retrieval, service.NewLocalGenerator(nil), repository.NewMemoryHistoryRepository(), 5),
		SearchService:   service.NewSearchService(nil),
		JWTManager:      jwtManager,
	})
	return &apiFixture{router: router, queue: queue, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body []byte, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (f *apiFixture) doJSON(t *testing.T, method, path, bearer string, payload interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return f.do(t, method, path, bearer, body, "application/json")
}

// login 注册并登录一个用户，返回 token。
func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	creds := CredentialsRequest{Username: username, Password: "geheim123"}
	w, _ := f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", creds)
	require.Equal(t, http.StatusOK, w.Code)
	w, env := f.doJSON(t, http.MethodPost, "/api/v1/users/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

// upload 上传文件并等待进程内队列处理完成。
func (f *apiFixture) upload(t *testing.T, bearer string, files map[string]string) []service.UploadResult {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w, env := f.do(t, http.MethodPost, "/api/v1/documents/upload", bearer, buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)
	f.queue.Close()

	var results []service.UploadResult
	require.NoError(t, json.Unmarshal(env.Data, &results))
	return results
}

func TestUserEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "anna")

	w, _ := f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", CredentialsRequest{Username: "anna", Password: "geheim123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.doJSON(t, http.MethodPost, "/api/v1/users/register", "", CredentialsRequest{Username: "kurz", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.doJSON(t, http.MethodPost, "/api/v1/users/login", "", CredentialsRequest{Username: "anna", Password: "falsch123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := f.doJSON(t, http.MethodGet, "/api/v1/users/me", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user model.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "anna", user.Username)
	assert.NotContains(t, string(env.Data), "geheim123")
}

func TestDocumentLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "max")

	results := f.upload(t, bearer, map[string]string{"lebenslauf.txt": resume})
	require.Len(t, results, 1)
	require.Empty(t, results[0].Error)
	docID := results[0].DocumentID

	w, env := f.doJSON(t, http.MethodGet, "/api/v1/documents", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []model.DocumentDTO
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "lebenslauf.txt", docs[0].Name)

	w, env = f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", bearer, AskRequest{Question: "Wie ist die E-Mail-Adresse?", DocumentID: &docID})
	require.Equal(t, http.StatusOK, w.Code)
	var result service.QAResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "max@example.de", result.Answer)
	require.NotNil(t, result.SourceDocument)
	assert.Equal(t, "lebenslauf.txt", *result.SourceDocument)
	assert.Equal(t, 1, result.RelevantChunks)
	assert.Empty(t, env.Hint)

	w, _ = f.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/v1/documents/%d", docID), bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/v1/documents/%d", docID), bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", bearer, AskRequest{Question: "Wie ist die E-Mail-Adresse?"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, service.NotFoundAnswer, result.Answer)
	assert.Zero(t, result.RelevantChunks)
	assert.Equal(t, RephraseHint, env.Hint)
}

func TestDocumentEndpoints_Validation(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "max")

	w, _ := f.do(t, http.MethodPost, "/api/v1/documents/upload", bearer, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.doJSON(t, http.MethodDelete, "/api/v1/documents/abc", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.doJSON(t, http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAsk_OtherUsersDocument(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.login(t, "max")
	results := f.upload(t, owner, map[string]string{"lebenslauf.txt": resume})
	require.Empty(t, results[0].Error)

	other := f.login(t, "eva")
	w, _ := f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", other, AskRequest{Question: "Wie ist die E-Mail-Adresse?", DocumentID: &results[0].DocumentID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", other, AskRequest{Question: "Wie ist die E-Mail-Adresse?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, RephraseHint, env.Hint)

	w, _ = f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", other, gin.H{"question": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "max")

	w, _ := f.doJSON(t, http.MethodPost, "/api/v1/qa/ask", bearer, AskRequest{Question: "Was ist sein Beruf?"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := f.doJSON(t, http.MethodGet, "/api/v1/qa/history", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.QARecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Was ist sein Beruf?", records[0].Question)

	w, _ = f.doJSON(t, http.MethodDelete, "/api/v1/qa/history", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = f.doJSON(t, http.MethodGet, "/api/v1/qa/history", bearer, nil)
	records = nil
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Empty(t, records)
}

func TestSearchPassages_Disabled(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "max")

	w, _ := f.doJSON(t, http.MethodGet, "/api/v1/search/passages?query=Berlin", bearer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = f.doJSON(t, http.MethodGet, "/api/v1/search/passages", bearer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_StreamsAnswer(t *testing.T) {
	f := newAPIFixture(t)
	bearer := f.login(t, "max")
	f.upload(t, bearer, map[string]string{"lebenslauf.txt": resume})

	srv := httptest.NewServer(f.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"kaputt", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+bearer, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(gin.H{"question": "Wie ist die E-Mail-Adresse?"}))
	var streamed strings.Builder
	var completion map[string]interface{}
	for completion == nil {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		if chunk, ok := frame["chunk"].(string); ok {
			streamed.WriteString(chunk)
			continue
		}
		require.Equal(t, "completion", frame["type"])
		completion = frame
	}
	assert.Equal(t, "max@example.de", streamed.String())
	assert.Equal(t, "finished", completion["status"])
	assert.Equal(t, "lebenslauf.txt", completion["sourceDocument"])
	assert.EqualValues(t, 1, completion["relevantChunks"])

	// 纯文本问题同样可以处理
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("Wie ist die E-Mail-Adresse?")))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "max@example.de", frame["chunk"])
}
