package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcallahan11/resybot-open/internal/auth"
	"github.com/dcallahan11/resybot-open/internal/scheduler"
	"github.com/dcallahan11/resybot-open/internal/store"
)

//go:embed templates/*.html static/*
var fs embed.FS

// Control is the slice of the scheduler the UI drives.
type Control interface {
	Reload(ctx context.Context) error
	RunningJobs() []scheduler.RunningJob
	StopRun(runID string) bool
}

type Server struct {
	Auth  *auth.Store
	Repo  *store.Repo
	Sched Control
	Log   zerolog.Logger

	BaseURL string
}

type tmplData struct {
	Title string
	User  int64
	Flash string

	Tasks     []store.Task
	Task      store.Task
	Accounts  []store.Account
	Schedules []store.Schedule
	Schedule  store.Schedule
	Runs      []scheduler.RunningJob
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/static/", http.FileServer(http.FS(fs)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	authed := func(h http.HandlerFunc) http.Handler { return s.Auth.RequireAuth(h) }
	mux.Handle("/", authed(s.handleTasks))
	mux.Handle("/tasks/new", authed(s.handleTaskNew))
	mux.Handle("/tasks/create", authed(s.handleTaskCreate))
	mux.Handle("/schedules", authed(s.handleSchedules))
	mux.Handle("/schedules/new", authed(s.handleScheduleNew))
	mux.Handle("/schedules/create", authed(s.handleScheduleCreate))
	mux.Handle("/schedules/toggle", authed(s.handleScheduleToggle))
	mux.Handle("/schedules/delete", authed(s.handleScheduleDelete))
	mux.Handle("/runs", authed(s.handleRuns))
	mux.Handle("/runs/stop", authed(s.handleRunStop))

	return mux
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
		if err != nil {
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	ts, err := s.Repo.ListTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/tasks.html", tmplData{Title: "Tasks", User: uid, Tasks: ts})
}

func (s *Server) handleTaskNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	accounts, err := s.Repo.ListAccounts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/new_task.html", tmplData{
		Title:    "New Task",
		User:     uid,
		Accounts: accounts,
		Task:     store.Task{PartySize: 2, FlexMinutes: 30, StartHour: 18, EndHour: 21, DelayMS: 1000},
	})
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := taskFromForm(r)
	if err == nil {
		err = t.Validate()
	}
	if err != nil {
		s.renderTaskForm(w, r, t, err.Error())
		return
	}

	if _, err := s.Repo.CreateTask(r.Context(), t); err != nil {
		s.Log.Error().Err(err).Msg("create task failed")
		s.renderTaskForm(w, r, t, "Failed to create task")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) renderTaskForm(w http.ResponseWriter, r *http.Request, t store.Task, flash string) {
	uid, _ := auth.UserIDFromContext(r.Context())
	accounts, _ := s.Repo.ListAccounts(r.Context())
	s.render(w, "templates/new_task.html", tmplData{Title: "New Task", User: uid, Accounts: accounts, Task: t, Flash: flash})
}

func taskFromForm(r *http.Request) (store.Task, error) {
	partySize, _ := strconv.Atoi(r.FormValue("party_size"))
	accountID, _ := strconv.ParseInt(r.FormValue("account_id"), 10, 64)
	flexMinutes, _ := strconv.Atoi(r.FormValue("flex_minutes"))
	startHour, _ := strconv.Atoi(r.FormValue("start_hour"))
	endHour, _ := strconv.Atoi(r.FormValue("end_hour"))
	delayMS, _ := strconv.Atoi(r.FormValue("delay_ms"))

	t := store.Task{
		Name:         strings.TrimSpace(r.FormValue("name")),
		AccountID:    accountID,
		RestaurantID: strings.TrimSpace(r.FormValue("restaurant_id")),
		PartySize:    partySize,
		DesiredTime:  strings.TrimSpace(r.FormValue("desired_time")),
		FlexMinutes:  flexMinutes,
		StartHour:    startHour,
		EndHour:      endHour,
		DelayMS:      delayMS,
	}
	if v := r.FormValue("backup_account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return t, fmt.Errorf("invalid backup account")
		}
		t.BackupAccountID = &id
	}

	var err error
	if t.StartDate, err = time.Parse("2006-01-02", r.FormValue("start_date")); err != nil {
		return t, fmt.Errorf("invalid start date")
	}
	if t.EndDate, err = time.Parse("2006-01-02", r.FormValue("end_date")); err != nil {
		return t, fmt.Errorf("invalid end date")
	}
	return t, nil
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	ss, err := s.Repo.ListSchedules(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/schedules.html", tmplData{Title: "Schedules", User: uid, Schedules: ss})
}

func (s *Server) handleScheduleNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	ts, err := s.Repo.ListTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/new_schedule.html", tmplData{
		Title:    "New Schedule",
		User:     uid,
		Tasks:    ts,
		Schedule: store.Schedule{DurationSec: 600, Enabled: true},
	})
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc, err := scheduleFromForm(r)
	if err == nil {
		err = sc.Validate()
	}
	if err != nil {
		uid, _ := auth.UserIDFromContext(r.Context())
		ts, _ := s.Repo.ListTasks(r.Context())
		s.render(w, "templates/new_schedule.html", tmplData{Title: "New Schedule", User: uid, Tasks: ts, Schedule: sc, Flash: err.Error()})
		return
	}

	if _, err := s.Repo.CreateSchedule(r.Context(), sc); err != nil {
		s.Log.Error().Err(err).Msg("create schedule failed")
		http.Error(w, "failed to create schedule", http.StatusInternalServerError)
		return
	}
	s.reloadScheduler(r.Context())
	http.Redirect(w, r, "/schedules", http.StatusFound)
}

func scheduleFromForm(r *http.Request) (store.Schedule, error) {
	taskID, _ := strconv.ParseInt(r.FormValue("task_id"), 10, 64)
	durationSec, _ := strconv.Atoi(r.FormValue("duration_sec"))

	sc := store.Schedule{
		TaskID:      taskID,
		Kind:        store.ScheduleKind(r.FormValue("kind")),
		DurationSec: durationSec,
		Enabled:     r.FormValue("enabled") != "",
	}
	switch sc.Kind {
	case store.KindOnce:
		at, err := time.ParseInLocation("2006-01-02T15:04", r.FormValue("run_at"), time.Local)
		if err != nil {
			return sc, fmt.Errorf("invalid run-at instant")
		}
		sc.RunAt = &at
	case store.KindDaily:
		sc.TimeOfDay = strings.TrimSpace(r.FormValue("time_of_day"))
	case store.KindWeekly:
		sc.TimeOfDay = strings.TrimSpace(r.FormValue("time_of_day"))
		dow, err := strconv.Atoi(r.FormValue("day_of_week"))
		if err != nil {
			return sc, fmt.Errorf("invalid day of week")
		}
		sc.DayOfWeek = &dow
	}
	return sc, nil
}

func (s *Server) handleScheduleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, _ := strconv.ParseInt(r.FormValue("id"), 10, 64)
	enabled := r.FormValue("enabled") == "true"
	if err := s.Repo.SetScheduleEnabled(r.Context(), id, enabled); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reloadScheduler(r.Context())
	http.Redirect(w, r, "/schedules", http.StatusFound)
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, _ := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err := s.Repo.DeleteSchedule(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reloadScheduler(r.Context())
	http.Redirect(w, r, "/schedules", http.StatusFound)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s.render(w, "templates/runs.html", tmplData{Title: "Running", User: uid, Runs: s.Sched.RunningJobs()})
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.Sched.StopRun(r.FormValue("run_id")) {
		http.Error(w, "no such run", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/runs", http.StatusFound)
}

func (s *Server) reloadScheduler(ctx context.Context) {
	if err := s.Sched.Reload(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("scheduler reload failed")
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

// Start serves h until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("web server listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
