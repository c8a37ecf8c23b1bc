package server_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/alan-mat/docqa/internal/document/pdftest"
	"github.com/alan-mat/docqa/internal/modules/generation"
	"github.com/alan-mat/docqa/internal/provider/providertest"
	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/internal/transport"
	"github.com/alan-mat/docqa/internal/vector"
	"github.com/alan-mat/docqa/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newClient(t *testing.T, config server.ServerConfig) *client {
	t.Helper()

	tr := transport.NewMemoryTransport()
	svc := qa.NewService(
		&providertest.Embedder{},
		&providertest.Chat{Answer: "Paris is the capital."},
		nil,
		vector.NewMemoryStore(),
		session.NewMemoryStore(),
		qa.WithTokenCounter(generation.TokenCounterFunc(generation.EstimateTokens)),
	)
	dispatcher := tasks.NewInlineDispatcher(tasks.NewRunner(tr, svc), tr)

	return &client{
		t:       t,
		handler: server.New(config, svc, dispatcher, tr).Handler(),
	}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()

	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name == server.SessionCookie {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) ask(query string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) upload(filename string, data []byte, chunkSize string) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatal(err)
	}
	fw.Write(data)
	if chunkSize != "" {
		mw.WriteField("chunk_size", chunkSize)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response '%s': %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	c := newClient(t, server.DefaultConfig())
	w := c.get("/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestIndexPage(t *testing.T) {
	c := newClient(t, server.DefaultConfig())

	w := c.get("/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if c.cookie == nil {
		t.Fatal("expected session cookie to be issued")
	}

	body := w.Body.String()
	for _, want := range []string{
		"PDF Question Answering System",
		"Process File",
		"Please upload and process a PDF first.",
		"Chat History",
		"Sources",
		`min="500"`,
		`max="10000"`,
		`value="1000"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestAskBeforeProcessing(t *testing.T) {
	c := newClient(t, server.DefaultConfig())

	w := c.ask("What is the capital?")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	resp := decode[map[string]string](t, w)
	if resp["error"] != qa.NotReadyMessage {
		t.Errorf("expected '%s', got '%s'", qa.NotReadyMessage, resp["error"])
	}
}

func TestProcessAndAsk(t *testing.T) {
	c := newClient(t, server.DefaultConfig())
	c.get("/")

	w := c.upload("france.pdf", pdftest.Build("The capital of France is Paris."), "800")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	job := decode[map[string]string](t, w)
	if job["status"] != "completed" || job["job_id"] == "" {
		t.Fatalf("unexpected job %v", job)
	}

	w = c.get("/api/jobs/" + job["job_id"])
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	trace := decode[map[string]any](t, w)
	if trace["status"] != "completed" || trace["document"] != "france.pdf" {
		t.Errorf("unexpected trace %v", trace)
	}

	w = c.get("/api/jobs/" + job["job_id"] + "/events")
	events := decode[struct {
		Events []transport.MessageStreamPayload `json:"events"`
	}](t, w)
	if len(events.Events) != 5 || events.Events[4].Status != transport.StatusDone {
		t.Errorf("expected four stages and a final message, got %+v", events.Events)
	}

	w = c.get("/api/session")
	sess := decode[session.Session](t, w)
	if !sess.Ready || sess.ChunkSize != 800 || sess.Document != "france.pdf" {
		t.Errorf("unexpected session %+v", sess)
	}

	w = c.ask("What is the capital of France?")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	answer := decode[qa.Answer](t, w)
	if answer.Text != "Paris is the capital." {
		t.Errorf("unexpected answer '%s'", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Label != "chunk_0" {
		t.Errorf("unexpected sources %+v", answer.Sources)
	}

	w = c.get("/api/history")
	history := decode[map[string]any](t, w)
	expected := "**Q:** What is the capital of France?\n**A:** Paris is the capital.\n" + strings.Repeat("-", 100) + "\n"
	if history["history"] != expected {
		t.Errorf("expected history %q, got %q", expected, history["history"])
	}

	w = c.get("/")
	if strings.Contains(w.Body.String(), `class="warning">`) {
		t.Error("expected warning to be hidden once a document is processed")
	}
}

func TestJobsAreScopedToSession(t *testing.T) {
	owner := newClient(t, server.DefaultConfig())
	w := owner.upload("a.pdf", pdftest.Build("hello"), "")
	job := decode[map[string]string](t, w)

	other := &client{t: t, handler: owner.handler}
	if w := other.get("/api/jobs/" + job["job_id"]); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a foreign job, got %d", w.Code)
	}
	if w := owner.get("/api/jobs/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown job, got %d", w.Code)
	}
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		data      []byte
		chunkSize string
		want      int
	}{
		{name: "not a pdf", filename: "notes.txt", data: []byte("hello"), want: http.StatusBadRequest},
		{name: "fake pdf", filename: "fake.pdf", data: []byte("hello"), want: http.StatusBadRequest},
		{name: "chunk size too small", filename: "a.pdf", data: pdftest.Build("x"), chunkSize: "499", want: http.StatusBadRequest},
		{name: "chunk size too large", filename: "a.pdf", data: pdftest.Build("x"), chunkSize: "10001", want: http.StatusBadRequest},
		{name: "chunk size not a number", filename: "a.pdf", data: pdftest.Build("x"), chunkSize: "big", want: http.StatusBadRequest},
		{name: "no text", filename: "blank.pdf", data: pdftest.Build(""), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, server.DefaultConfig())
			w := c.upload(tt.filename, tt.data, tt.chunkSize)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	config := server.DefaultConfig()
	config.MaxUploadBytes = 512

	c := newClient(t, config)
	w := c.upload("big.pdf", pdftest.Build(strings.Repeat("word ", 500)), "")
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestAskEmptyQuery(t *testing.T) {
	c := newClient(t, server.DefaultConfig())
	if w := c.ask("  "); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	config := server.DefaultConfig()
	config.RequestsPerSecond = 0.001
	config.Burst = 1

	c := newClient(t, config)
	if w := c.get("/api/session"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := c.get("/api/session"); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if w := c.get("/healthz"); w.Code != http.StatusOK {
		t.Errorf("expected health checks to bypass rate limiting, got %d", w.Code)
	}
}
