package livereload

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertScript(t *testing.T) {
	page := []byte(`<html><body><p>hi</p><script>var s = "</body>";</script></body></html>`)
	out := string(InsertScript(page))
	assert.True(t, strings.HasSuffix(out, scriptTag+"</body></html>"))
	assert.Equal(t, 1, strings.Count(out, scriptTag))
	assert.Contains(t, out, `var s = "</body>";`)
}

func TestInsertScript_NoBody(t *testing.T) {
	out := string(InsertScript([]byte("<p>fragment</p>")))
	assert.Equal(t, "<p>fragment</p>"+scriptTag, out)
}

func TestInsertScript_UppercaseTag(t *testing.T) {
	out := string(InsertScript([]byte("<HTML><BODY>x</BODY></HTML>")))
	assert.Equal(t, "<HTML><BODY>x"+scriptTag+"</BODY></HTML>", out)
}

func TestInject_HTMLPage(t *testing.T) {
	h := Inject(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", "26")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), scriptTag+"</body>")
	assert.Empty(t, rec.Header().Get("Content-Length"))
}

func TestInject_SkipsAssets(t *testing.T) {
	h := Inject(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<body></body>"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, "<body></body>", rec.Body.String())
}

func TestInject_NonHTMLContentType(t *testing.T) {
	h := Inject(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"body":"</body>"}`))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data.html", nil))
	assert.Equal(t, `{"body":"</body>"}`, rec.Body.String())
}

func TestInject_ErrorStatusUntouched(t *testing.T) {
	h := Inject(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<body>missing</body>"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "<body>missing</body>", rec.Body.String())
}

func TestScriptHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ScriptPath, nil))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), "new EventSource('/livereload')")
}
