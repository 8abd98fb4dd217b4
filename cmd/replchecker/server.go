package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
	"github.com/fkfk000/replication-checker/storage"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	jsonContent  = "application/json"
	protoContent = "application/vnd.replchecker+protobuf"
	textContent  = "text/plain"
)

/*
server is the management API. "db" and "tracker" are nil when there is no
change database.
*/
type server struct {
	session  *replication.Session
	db       *storage.SQL
	dbDir    string
	tracker  *changeTracker
	gatherer prometheus.Gatherer
	router   *httprouter.Router
}

func newServer(session *replication.Session, db *storage.SQL, dbDir string,
	tracker *changeTracker, gatherer prometheus.Gatherer) *server {
	s := &server{
		session:  session,
		db:       db,
		dbDir:    dbDir,
		tracker:  tracker,
		gatherer: gatherer,
		router:   httprouter.New(),
	}

	s.router.HandlerFunc("GET", "/health", s.handleHealth)
	s.router.HandlerFunc("GET", "/status", s.handleStatus)
	s.router.HandlerFunc("GET", "/relations", s.handleRelations)
	s.router.Handler("GET", "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.initChangesAPI(s.router)
	s.initDiagAPI(s.router)
	return s
}

func (s *server) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(resp, req)
}

/*
checkHealth returns an error once replication has stopped for any reason
other than being told to.
*/
func (s *server) checkHealth() error {
	st := s.session.Status()
	if st.State == replication.StateTerminated.String() && st.Error != "" &&
		st.Error != context.Canceled.Error() {
		return errors.New(st.Error)
	}
	return nil
}

func (s *server) handleHealth(resp http.ResponseWriter, req *http.Request) {
	resp.Header().Set("Content-Type", textContent)
	if err := s.checkHealth(); err != nil {
		resp.WriteHeader(http.StatusServiceUnavailable)
		resp.Write([]byte(err.Error()))
		return
	}
	resp.Write([]byte("OK"))
}

func (s *server) handleStatus(resp http.ResponseWriter, req *http.Request) {
	writeJSON(resp, s.session.Status())
}

type columnDoc struct {
	Name         string `json:"name"`
	TypeID       uint32 `json:"typeId"`
	TypeModifier int32  `json:"typeModifier"`
	Key          bool   `json:"key,omitempty"`
}

type relationDoc struct {
	ID              uint32      `json:"id"`
	Namespace       string      `json:"namespace"`
	Name            string      `json:"name"`
	ReplicaIdentity string      `json:"replicaIdentity"`
	Columns         []columnDoc `json:"columns"`
}

func makeRelationDoc(r *pgoutput.RelationInfo) relationDoc {
	d := relationDoc{
		ID:              r.ID,
		Namespace:       r.Namespace,
		Name:            r.Name,
		ReplicaIdentity: r.ReplicaIdentity.String(),
		Columns:         []columnDoc{},
	}
	for _, c := range r.Columns {
		d.Columns = append(d.Columns, columnDoc{
			Name:         c.Name,
			TypeID:       c.TypeID,
			TypeModifier: c.TypeModifier,
			Key:          c.IsKey(),
		})
	}
	return d
}

func (s *server) handleRelations(resp http.ResponseWriter, req *http.Request) {
	docs := []relationDoc{}
	for _, r := range s.session.Catalog().Relations() {
		docs = append(docs, makeRelationDoc(r))
	}
	writeJSON(resp, docs)
}

func writeJSON(resp http.ResponseWriter, v interface{}) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		sendAPIError(serverError, err.Error(), resp)
		return
	}
	resp.Header().Set("Content-Type", jsonContent)
	resp.Write(buf)
}

func getIntParam(q url.Values, key string, dflt int) (int, error) {
	qs := q.Get(key)
	if qs == "" {
		return dflt, nil
	}
	v, err := strconv.ParseInt(qs, 10, 32)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.Errorf("%s must not be negative", key)
	}
	return int(v), nil
}

/*
selectMediaType picks the first of "offers" that the Accept header allows,
or the first offer if there is no Accept header. It returns "" if none is
acceptable. Quality values are not considered.
*/
func selectMediaType(req *http.Request, offers []string) string {
	accept := req.Header.Get("Accept")
	if accept == "" {
		return offers[0]
	}
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == "*/*" {
			return offers[0]
		}
		for _, o := range offers {
			if strings.EqualFold(mt, o) {
				return o
			}
		}
	}
	return ""
}
