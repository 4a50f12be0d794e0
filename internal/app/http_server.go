package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"toggl-companion/internal/domain"
	"toggl-companion/internal/timeutil"
)

// HTTPServer returns a configured http.Server exposing thin JSON endpoints
// over the sync core, for scripting and inspection. Call ListenAndServe on
// the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := time.Now()
		p := a.Session.Active()
		var running any
		if e := a.Store.Running(); e != nil {
			running = renderEntry(*e, p, a.Session.ProjectName, now)
		}
		recent := a.Store.Recent()
		entries := make([]map[string]any, 0, len(recent))
		for _, e := range recent {
			entries = append(entries, renderEntry(e, p, a.Session.ProjectName, now))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"running":    running,
			"entries":    entries,
			"week_total": timeutil.FormatHMS(a.Session.WeekTotal(now)),
		})
	})

	mux.HandleFunc("/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p := a.Session.Active()
		body := map[string]any{"projects": a.Session.Projects()}
		if p.DefaultProjectID != nil {
			body["default_project"] = a.Session.ProjectName(*p.DefaultProjectID)
		}
		writeJSON(w, http.StatusOK, body)
	})

	// /start?description=...&project_id=...
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		var project *int64
		if p := q.Get("project_id"); p != "" {
			id, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				http.Error(w, "project_id must be an integer", http.StatusBadRequest)
				return
			}
			project = &id
		}
		target, seq := a.Store.Start(q.Get("description"), project, time.Now())
		writeJSON(w, http.StatusOK, map[string]any{"target": target, "seq": seq})
	})

	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		target, seq, ok := a.Store.StopRunning(time.Now())
		if !ok {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "nothing running"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"target": target, "seq": seq})
	})

	// /edit?target=...&description=... applies an undoable edit.
	mux.HandleFunc("/edit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		target := q.Get("target")
		var delta domain.EntryDelta
		if desc, ok := q["description"]; ok && len(desc) > 0 {
			delta = delta.Merge(domain.SetDescription(desc[0]))
		}
		if tags, ok := q["tags"]; ok {
			delta = delta.Merge(domain.SetTags(tags))
		}
		if delta.IsZero() {
			http.Error(w, "no editable fields given", http.StatusBadRequest)
			return
		}
		frame, ok := a.Store.EditFrame(target, delta)
		if !ok {
			http.Error(w, "unknown entry", http.StatusNotFound)
			return
		}
		seq := a.History.Commit(frame)
		writeJSON(w, http.StatusOK, map[string]any{"target": target, "seq": seq})
	})

	mux.HandleFunc("/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !a.Store.Delete(r.URL.Query().Get("target")) {
			http.Error(w, "unknown entry", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	mux.HandleFunc("/undo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"undone": a.History.Undo()})
	})

	mux.HandleFunc("/redo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"redone": a.History.Redo()})
	})

	// /switch?profile=name
	mux.HandleFunc("/switch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p, err := a.Profile(r.URL.Query().Get("profile"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err := a.Session.Switch(r.Context(), p); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": p.Name})
	})

	srv := &http.Server{Addr: addr, Handler: loggingMiddleware(a.log, mux)}
	a.log.Info("http server configured", slog.String("addr", addr))
	return srv
}

// renderEntry shapes one entry for the JSON surface, formatting timestamps
// with the profile's date and time preferences and resolving the project
// name from the primed project list.
func renderEntry(e domain.TimeEntry, p domain.Profile, projectName func(int64) string, now time.Time) map[string]any {
	out := map[string]any{
		"id":          e.ID,
		"target":      e.LocalID,
		"description": e.Description,
		"tags":        e.Tags,
		"billable":    e.Billable,
		"running":     e.Running(),
		"start":       timeutil.FormatDateTime(&e.Start, p.DateFormat, p.TimeFormat),
		"stop":        timeutil.FormatDateTime(e.Stop, p.DateFormat, p.TimeFormat),
		"duration":    timeutil.FormatHMS(e.Duration(now)),
	}
	if e.ProjectID != nil {
		out["project_id"] = *e.ProjectID
		if name := projectName(*e.ProjectID); name != "" {
			out["project"] = name
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}
