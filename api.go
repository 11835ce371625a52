package chatwatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API is the HTTP control surface: the annotated page, feature toggles,
// identity, keywords, pins, and the in-page alert socket.
type API struct {
	dispatcher *Dispatcher
	page       *Page
	alerts     http.Handler
}

// NewAPI returns the control surface. alerts serves the in-page alert socket
// and may be nil.
func NewAPI(d *Dispatcher, page *Page, alerts http.Handler) *API {
	return &API{dispatcher: d, page: page, alerts: alerts}
}

// Router registers every route.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	// Fingerprints may contain '/', so path variables are matched encoded.
	r.UseEncodedPath()

	r.HandleFunc("/", a.renderPage).Methods(http.MethodGet)
	if a.alerts != nil {
		r.Handle("/ws", a.alerts)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/features", a.getState).Methods(http.MethodGet)
	api.HandleFunc("/features/{name}", a.enableFeature).Methods(http.MethodPost)
	api.HandleFunc("/features/{name}", a.disableFeature).Methods(http.MethodDelete)
	api.HandleFunc("/identity", a.putIdentity).Methods(http.MethodPut)
	api.HandleFunc("/keywords", a.getKeywords).Methods(http.MethodGet)
	api.HandleFunc("/keywords", a.putKeywords).Methods(http.MethodPut)
	api.HandleFunc("/pins/{fingerprint}", a.togglePin).Methods(http.MethodPost)
	api.HandleFunc("/pins", a.clearPins).Methods(http.MethodDelete)
	api.HandleFunc("/reset", a.reset).Methods(http.MethodPost)
	return r
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>chatwatch</title></head>
<body>
{{.}}
<script>
(function() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = function(ev) {
    var a = JSON.parse(ev.data);
    console.log("[chatwatch]", a.title, a.body);
  };
})();
</script>
</body>
</html>
`))

func (a *API) renderPage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := a.page.Render(&buf); err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			writeError(w, http.StatusServiceUnavailable, "chat not loaded yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, template.HTML(buf.String())); err != nil {
		logger.Warn("page_render_failed", "error", err)
	}
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	v, err := a.dispatcher.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) enableFeature(w http.ResponseWriter, r *http.Request) {
	a.toggleFeature(w, r, true)
}

func (a *API) disableFeature(w http.ResponseWriter, r *http.Request) {
	a.toggleFeature(w, r, false)
}

func (a *API) toggleFeature(w http.ResponseWriter, r *http.Request, on bool) {
	f, err := ParseFeature(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if on {
		err = a.dispatcher.Enable(r.Context(), f)
	} else {
		err = a.dispatcher.Disable(r.Context(), f)
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	a.getState(w, r)
}

type identityRequest struct {
	Identity string `json:"identity"`
}

func (a *API) putIdentity(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.dispatcher.SetIdentity(r.Context(), req.Identity); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	a.getState(w, r)
}

type keywordsBody struct {
	Keywords []string `json:"keywords"`
}

func (a *API) getKeywords(w http.ResponseWriter, r *http.Request) {
	v, err := a.dispatcher.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keywordsBody{Keywords: v.Keywords})
}

func (a *API) putKeywords(w http.ResponseWriter, r *http.Request) {
	var req keywordsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.dispatcher.SetKeywords(r.Context(), req.Keywords); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	a.getKeywords(w, r)
}

func (a *API) togglePin(w http.ResponseWriter, r *http.Request) {
	fp, err := url.PathUnescape(mux.Vars(r)["fingerprint"])
	if err != nil || fp == "" {
		writeError(w, http.StatusBadRequest, "invalid fingerprint")
		return
	}
	pinned, err := a.dispatcher.TogglePin(r.Context(), fp)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fingerprint": fp, "pinned": pinned})
}

func (a *API) clearPins(w http.ResponseWriter, r *http.Request) {
	if err := a.dispatcher.ClearPins(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.dispatcher.Reset(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// PinPath returns the API path that toggles fp.
func PinPath(fp string) string {
	return fmt.Sprintf("/api/pins/%s", url.PathEscape(fp))
}
