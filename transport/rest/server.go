package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

type server struct {
	sender  masedb.Sender
	apiKeys []string
	logger  masedb.Logger
}

// ServerOpt configures a Handler
type ServerOpt func(s *server)

// WithAPIKeys requires one of the keys in the X-API-Key header
func WithAPIKeys(keys ...string) ServerOpt {
	return func(s *server) {
		s.apiKeys = keys
	}
}

// WithServerLogger sets the handler's logger
func WithServerLogger(logger masedb.Logger) ServerOpt {
	return func(s *server) {
		s.logger = logger
	}
}

// Handler serves the MaseDB document api from a Sender
// POST   /api/{collection}       insert the json document in the request body
// GET    /api/{collection}       list documents matching the json filter in the request body
// GET    /api/{collection}/{id}  get a document by id
// PUT    /api/{collection}/{id}  apply the json update in the request body to a document
// DELETE /api/{collection}/{id}  delete a document
func Handler(sender masedb.Sender, opts ...ServerOpt) http.Handler {
	s := &server{sender: sender, logger: masedb.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	router := mux.NewRouter()
	router.Use(s.authenticate)
	collection := "/api/{collection}"
	document := "/api/{collection}/{id}"
	router.HandleFunc(collection, s.insert).Methods(http.MethodPost)
	router.HandleFunc(collection, s.list).Methods(http.MethodGet)
	router.HandleFunc(document, s.get).Methods(http.MethodGet)
	router.HandleFunc(document, s.update).Methods(http.MethodPut)
	router.HandleFunc(document, s.delete).Methods(http.MethodDelete)
	return router
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) > 0 && !lo.Contains(s.apiKeys, r.Header.Get(headerAPIKey)) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid api key", nil)
			return
		}
		ctx := r.Context()
		if id := r.Header.Get(headerRequestID); id != "" {
			ctx = masedb.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) insert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, r, errors.Wrap(err, errors.Validation, "failed to read request body"))
		return
	}
	doc, err := masedb.NewDocumentFromBytes(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ack, err := s.send(r, masedb.Insert(doc))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var id string
	if len(ack.IDs) > 0 {
		id = ack.IDs[0]
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	filter, err := readFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ack, err := s.send(r, masedb.Find(filter))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	docs := ack.Documents
	if docs == nil {
		docs = masedb.Documents{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	filter, err := readFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ack, err := s.send(r, masedb.Find(byID(r)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	docs := ack.Documents.Filter(filter)
	if len(docs) == 0 {
		s.fail(w, r, errors.New(errors.NotFound, "document %s not found", mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, docs[0])
}

func (s *server) update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, r, errors.Wrap(err, errors.Validation, "failed to read request body"))
		return
	}
	update, err := masedb.ParseUpdate(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ack, err := s.send(r, masedb.UpdateWhere(byID(r), update))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ack.Matched == 0 {
		s.fail(w, r, errors.New(errors.NotFound, "document %s not found", mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Document updated successfully"})
}

func (s *server) delete(w http.ResponseWriter, r *http.Request) {
	ack, err := s.send(r, masedb.Delete(byID(r)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ack.Matched == 0 {
		s.fail(w, r, errors.New(errors.NotFound, "document %s not found", mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Document deleted successfully"})
}

func (s *server) send(r *http.Request, op masedb.Operation) (*masedb.Ack, error) {
	start := time.Now()
	collection := mux.Vars(r)["collection"]
	ack, err := s.sender.Send(r.Context(), collection, op)
	s.logger.Debug(r.Context(), "operation executed", map[string]any{
		"request.path": r.URL.Path,
		"collection":   collection,
		"op_kind":      string(op.Kind),
		"duration":     float64(time.Since(start).Microseconds()) / float64(1000),
	})
	if err != nil {
		return nil, err
	}
	if ack == nil {
		ack = &masedb.Ack{}
	}
	return ack, nil
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := errors.Extract(err)
	status := statusOf(e.Code)
	s.logger.Error(r.Context(), "request failed", err, map[string]any{
		"request.path": r.URL.Path,
		"status":       status,
	})
	code := string(e.Code)
	if code == "" {
		code = string(errors.Internal)
	}
	msg := err.Error()
	if len(e.Messages) > 0 {
		msg = e.Messages[0]
	}
	writeError(w, status, code, msg, e.Details)
}

func statusOf(code errors.Code) int {
	switch code {
	case errors.Query, errors.Update:
		return http.StatusBadRequest
	case errors.Validation:
		return http.StatusUnprocessableEntity
	case errors.NotFound:
		return http.StatusNotFound
	case errors.Forbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func readFilter(r *http.Request) (*masedb.Filter, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to read request body")
	}
	if len(body) == 0 {
		return masedb.NewFilter(nil)
	}
	return masedb.ParseFilter(body)
}

func byID(r *http.Request) *masedb.Filter {
	return masedb.MustFilter(map[string]any{idField: mux.Vars(r)["id"]})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
			"details": details,
		},
	})
}
