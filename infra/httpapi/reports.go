package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/report"
	infrareport "github.com/kilianp07/fleetsim/infra/report"
)

// ReportQuerier reads stored reports back; the SQLite and JSONL handlers
// implement it.
type ReportQuerier interface {
	Query(ctx context.Context, q infrareport.Query) ([]infrareport.Record, error)
}

// NewReportHandler serves GET /runs/{id}/reports?type=a,b&from=60&to=3600.
// Requests must include an Authorization header with "Bearer <token>" when
// token is non-empty.
func NewReportHandler(store ReportQuerier, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := infrareport.Query{RunID: chi.URLParam(r, "id")}
		if s := r.URL.Query().Get("type"); s != "" {
			for _, name := range strings.Split(s, ",") {
				t, err := report.ParseType(name)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				q.Types = append(q.Types, t)
			}
		}
		var err error
		if q.From, err = simTimeParam(r, "from"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if q.To, err = simTimeParam(r, "to"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []infrareport.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func simTimeParam(r *http.Request, key string) (model.SimTime, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	return model.ParseSimTime(s)
}
