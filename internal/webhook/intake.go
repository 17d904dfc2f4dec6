// Package webhook implements the HTTP intake surface: signed notifications
// from each endpoint land here, get validated, and are durably queued for
// the background worker to act on.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/agentworkforce/erpsync/internal/engine"
)

// defaultSignatureHeader matches Frappe's own webhook emitter; the header
// name is still configurable via Config for other emitters.
const defaultSignatureHeader = "X-Frappe-Webhook-Signature"

// knownActions are the queue action values the executor understands; any
// other value (including absent) is treated as an update, matching Frappe's
// own webhook convention of announcing every save as a generic notification.
var knownActions = map[string]bool{"create": true, "update": true, "delete": true}

// Payload is the notification body posted by either endpoint, after
// resolving the top-level fields and the nested `doc` fallback.
type Payload struct {
	Doctype   string `json:"doctype"`
	Docname   string `json:"name"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp,omitempty"`
}

// nestedDoc is the shape some emitters nest the document under a `doc` key
// instead of carrying doctype/name/action at the top level.
type nestedDoc struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
	Action  string `json:"action"`
}

// rawPayload is the wire shape of a notification body before the doc
// fallback and action default are applied.
type rawPayload struct {
	Doctype   string     `json:"doctype"`
	Docname   string     `json:"name"`
	Action    string     `json:"action"`
	Timestamp string     `json:"timestamp,omitempty"`
	Doc       *nestedDoc `json:"doc,omitempty"`
}

// resolve applies the nested-doc fallback for whichever top-level fields are
// empty, then defaults an absent or unrecognized action to update.
func (p rawPayload) resolve() Payload {
	doctype, docname, action := p.Doctype, p.Docname, p.Action
	if p.Doc != nil {
		if doctype == "" {
			doctype = p.Doc.Doctype
		}
		if docname == "" {
			docname = p.Doc.Name
		}
		if action == "" {
			action = p.Doc.Action
		}
	}
	if !knownActions[action] {
		action = string(engine.QueueActionUpdate)
	}
	return Payload{Doctype: doctype, Docname: docname, Action: action, Timestamp: p.Timestamp}
}

// Config bounds the intake server's behavior.
type Config struct {
	// Secret is the shared HMAC secret. Empty disables verification, which
	// is only acceptable in local development — Server logs loudly when run
	// this way.
	Secret string
	// SignatureHeader names the header carrying the HMAC hex digest. Empty
	// defaults to defaultSignatureHeader.
	SignatureHeader string
	MaxBodyBytes    int64
}

// Server is the webhook HTTP surface: POST /webhook/{source} ingests a
// notification, GET /health and GET /status report liveness, and GET
// /events (wired by the caller via Hub) streams status over a websocket.
type Server struct {
	cfg     Config
	store   engine.StateBackend
	doctype map[string]struct{}
	hub     *Hub
	log     *logrus.Logger
}

// NewServer builds the intake server. knownDoctypes gates which doctype
// names are accepted, matching the configured sync scope.
func NewServer(cfg Config, store engine.StateBackend, knownDoctypes []string, hub *Hub, log *logrus.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = defaultSignatureHeader
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	set := make(map[string]struct{}, len(knownDoctypes))
	for _, d := range knownDoctypes {
		set[d] = struct{}{}
	}
	if cfg.Secret == "" {
		log.Warn("webhook: running without a shared secret; every request is accepted unverified")
	}
	return &Server{cfg: cfg, store: store, doctype: set, hub: hub, log: log}
}

// Router builds the mux.Router exposing this server's handlers.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/webhook/{source}", s.handleWebhook).Methods(http.MethodPost)
	if s.hub != nil {
		r.HandleFunc("/events", s.hub.ServeHTTP).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, processing, err := s.store.QueueCounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": pending, "processing": processing})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := engine.QueueSource(mux.Vars(r)["source"])
	if source != engine.SourceCloud && source != engine.SourceLocal {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown webhook source"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body exceeds configured limit"})
		return
	}

	if s.cfg.Secret != "" {
		if !verifySignature(s.cfg.Secret, r.Header.Get(s.cfg.SignatureHeader), body) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook signature"})
			return
		}
	}

	jsonBody := body
	if isFormEncoded(r.Header.Get("Content-Type")) {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
			return
		}
		jsonBody = []byte(values.Get("data"))
	}

	var raw any
	if err := json.Unmarshal(jsonBody, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if err := validatePayloadShape(raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var rp rawPayload
	if err := json.Unmarshal(jsonBody, &rp); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	payload := rp.resolve()
	if payload.Doctype == "" || payload.Docname == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing doctype or name"})
		return
	}
	if _, ok := s.doctype[payload.Doctype]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "doctype not configured for sync"})
		return
	}

	id, err := s.store.Enqueue(r.Context(), engine.WebhookQueueItem{
		Source:    source,
		Doctype:   payload.Doctype,
		Docname:   payload.Docname,
		Action:    engine.QueueAction(payload.Action),
		Payload:   string(body),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"doctype": payload.Doctype, "docname": payload.Docname, "delivery_id": uuid.NewString(),
		}).Error("enqueue webhook notification")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to queue notification"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "id": id})
}

// isFormEncoded reports whether body should be treated as
// application/x-www-form-urlencoded, with the JSON payload carried in a
// `data` field, as some emitters send it instead of a raw JSON body.
func isFormEncoded(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/x-www-form-urlencoded")
}

// verifySignature checks the configured signature header against an
// HMAC-SHA256 digest of the raw body, in constant time.
func verifySignature(secret, header string, body []byte) bool {
	header = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(header)), "sha256=")
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
