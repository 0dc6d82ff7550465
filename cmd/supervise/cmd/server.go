package cmd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hedisam/supervise/supervisor"
)

type childView struct {
	ID       string `json:"id"`
	Restart  string `json:"restart"`
	Running  bool   `json:"running"`
	PID      string `json:"pid,omitempty"`
	Restarts int    `json:"restarts"`
}

type statusView struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Reason  string `json:"reason,omitempty"`
}

func newRouter(ref *supervisor.Ref, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", statusHandler(ref)).Methods(http.MethodGet)
	r.HandleFunc("/children", childrenHandler(ref)).Methods(http.MethodGet)
	r.HandleFunc("/children/{id}/restart", childActionHandler(ref.RestartChild)).Methods(http.MethodPost)
	r.HandleFunc("/children/{id}/terminate", childActionHandler(ref.TerminateChild)).Methods(http.MethodPost)
	return r
}

func statusHandler(ref *supervisor.Ref) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := ref.Status()
		view := statusView{Name: ref.Name(), Running: status.Running}
		if !status.Running {
			view.Reason = status.Reason.String()
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func childrenHandler(ref *supervisor.Ref) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		children, err := ref.WhichChildren()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, childViews(children))
	}
}

func childActionHandler(action func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(mux.Vars(r)["id"]); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func childViews(children []supervisor.ChildInfo) []childView {
	views := make([]childView, 0, len(children))
	for _, c := range children {
		view := childView{ID: c.ID, Restart: c.Restart.String(), Running: c.Running, Restarts: c.Restarts}
		if c.PID != nil {
			view.PID = c.PID.String()
		}
		views = append(views, view)
	}
	return views
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, supervisor.ErrChildNotFound):
		code = http.StatusNotFound
	case errors.Is(err, supervisor.ErrChildRunning), errors.Is(err, supervisor.ErrChildNotRunning):
		code = http.StatusConflict
	case errors.Is(err, supervisor.ErrSupervisorStopped):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
