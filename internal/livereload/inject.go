package livereload

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/devbundle/internal/logfields"
)

// ScriptPath is where ScriptHandler is mounted.
const ScriptPath = "/livereload.js"

// Script reloads the page when the hub announces a hash different from the
// one seen on connect.
const Script = `(() => {
  if (window.__DEVBUNDLE_LR__) return;
  window.__DEVBUNDLE_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) {
          console.log('[devbundle] bundle updated, reloading');
          location.reload();
        }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

const scriptTag = `<script async src="` + ScriptPath + `"></script>`

const maxInjectSize = 512 * 1024

// ScriptHandler serves Script.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := io.WriteString(w, Script); err != nil {
			slog.Debug("livereload script write", logfields.Error(err))
		}
	})
}

// Inject adds the client script tag to HTML pages served by next.
func Inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p != "" && !strings.HasSuffix(p, "/") && !strings.HasSuffix(p, ".html") {
			next.ServeHTTP(w, r)
			return
		}
		iw := &injector{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(iw, r)
		iw.finalize()
	})
}

// InsertScript returns page with scriptTag placed before the last </body>
// tag, or appended when the document has none.
func InsertScript(page []byte) []byte {
	at := bodyCloseOffset(page)
	if at < 0 {
		return append(append([]byte(nil), page...), scriptTag...)
	}
	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:at]...)
	out = append(out, scriptTag...)
	return append(out, page[at:]...)
}

// bodyCloseOffset tokenizes page and returns the byte offset of the last
// </body> end tag, ignoring text inside scripts, comments and attributes.
func bodyCloseOffset(page []byte) int {
	z := html.NewTokenizer(bytes.NewReader(page))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				found = offset
			}
		}
		offset += raw
	}
}

// injector buffers an HTML response so the script can be inserted. Non-HTML
// and oversized bodies pass through untouched.
type injector struct {
	http.ResponseWriter
	status        int
	buf           []byte
	buffering     bool
	passthrough   bool
	headerWritten bool
}

func (i *injector) WriteHeader(code int) {
	i.status = code
	if i.passthrough {
		i.ResponseWriter.WriteHeader(code)
		i.headerWritten = true
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.buffering && !i.passthrough {
		ct := i.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			return i.startPassthrough(data)
		}
		i.buffering = true
	}
	if i.passthrough {
		return i.ResponseWriter.Write(data)
	}
	if len(i.buf)+len(data) > maxInjectSize {
		return i.startPassthrough(data)
	}
	i.buf = append(i.buf, data...)
	return len(data), nil
}

func (i *injector) startPassthrough(data []byte) (int, error) {
	i.passthrough = true
	i.buffering = false
	if !i.headerWritten {
		i.ResponseWriter.WriteHeader(i.status)
		i.headerWritten = true
	}
	if len(i.buf) > 0 {
		if _, err := i.ResponseWriter.Write(i.buf); err != nil {
			return 0, err
		}
		i.buf = nil
	}
	return i.ResponseWriter.Write(data)
}

func (i *injector) finalize() {
	if i.passthrough {
		return
	}
	if len(i.buf) == 0 || i.status != http.StatusOK {
		if !i.headerWritten {
			i.ResponseWriter.WriteHeader(i.status)
		}
		if len(i.buf) > 0 {
			_, _ = i.ResponseWriter.Write(i.buf)
		}
		return
	}
	out := InsertScript(i.buf)
	i.Header().Del("Content-Length")
	i.ResponseWriter.WriteHeader(i.status)
	if _, err := i.ResponseWriter.Write(out); err != nil {
		slog.Debug("livereload inject write", logfields.Error(err))
	}
}
