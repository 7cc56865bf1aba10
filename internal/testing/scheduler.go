package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/platform/marathon"
)

// FakeScheduler serves the subset of the Marathon and Mesos APIs used by
// the environment launcher from one httptest server. Tasks of a created
// app start after StartAfter reads of that app; apps in Stuck never start.
type FakeScheduler struct {
	mu       sync.Mutex
	apps     map[string]*marathon.App
	slaves   []marathon.Slave
	reads    map[string]int
	requests []string
	nextTask int

	StartAfter int
	Stuck      map[string]bool

	server *httptest.Server
}

// NewFakeScheduler starts the server. Call Close when done.
func NewFakeScheduler() *FakeScheduler {
	s := &FakeScheduler{
		apps:  map[string]*marathon.App{},
		reads: map[string]int{},
		Stuck: map[string]bool{},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Addr is the host:port of the server.
func (s *FakeScheduler) Addr() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

func (s *FakeScheduler) Close() {
	s.server.Close()
}

// Attach makes remote's Marathon and Mesos ports reach the scheduler.
func (s *FakeScheduler) Attach(remote *FakeRemote) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.Targets[config.MarathonPort] = s.Addr()
	remote.Targets[config.MesosPort] = s.Addr()
}

// AddSlave registers an active agent of group.
func (s *FakeScheduler) AddSlave(group, host string, cpus, mem float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slaves = append(s.slaves, marathon.Slave{
		ID:         fmt.Sprintf("slave-%d", len(s.slaves)+1),
		Hostname:   host,
		Active:     true,
		Resources:  marathon.Resources{CPUs: cpus, Mem: mem},
		Attributes: map[string]any{marathon.ConstraintField: group},
	})
}

// DeactivateSlave marks the agent on host as gone.
func (s *FakeScheduler) DeactivateSlave(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slaves {
		if s.slaves[i].Hostname == host {
			s.slaves[i].Active = false
		}
	}
}

// Slaves returns the registered agents.
func (s *FakeScheduler) Slaves() []marathon.Slave {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.slaves)
}

// AddApp registers an already running app with started tasks.
func (s *FakeScheduler) AddApp(app marathon.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = marathon.AppID(app.ID)
	app.Tasks = nil
	s.apps[app.Name()] = &app
	s.resize(&app, app.Instances, true)
}

// App returns a copy of the named app, or nil.
func (s *FakeScheduler) App(name string) *marathon.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[marathon.AppName(name)]
	if !ok {
		return nil
	}
	cp := *app
	cp.Tasks = slices.Clone(app.Tasks)
	return &cp
}

// AppNames returns the names of all apps, sorted.
func (s *FakeScheduler) AppNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.apps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Requests returns "METHOD path?query" for every request served.
func (s *FakeScheduler) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestsMatching returns the served requests starting with prefix.
func (s *FakeScheduler) RequestsMatching(prefix string) []string {
	var out []string
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (s *FakeScheduler) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := r.Method + " " + r.URL.Path
	if r.URL.RawQuery != "" {
		line += "?" + r.URL.RawQuery
	}
	s.requests = append(s.requests, line)
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/master/state.json" {
		writeJSON(w, http.StatusOK, map[string]any{"slaves": s.slaves})
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/v2/apps")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}
	name, tasks := strings.CutSuffix(strings.TrimPrefix(rest, "/"), "/tasks")

	switch {
	case name == "" && r.Method == http.MethodGet:
		apps := make([]marathon.App, 0, len(s.apps))
		for _, n := range sortedKeys(s.apps) {
			app := *s.apps[n]
			app.Tasks = nil
			apps = append(apps, app)
		}
		writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
	case name == "" && r.Method == http.MethodPost:
		s.create(w, r)
	case tasks && r.Method == http.MethodDelete:
		s.killTasks(w, name, r.URL.Query())
	case r.Method == http.MethodGet:
		app, ok := s.apps[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("App '/%s' does not exist", name)})
			return
		}
		s.reads[name]++
		if s.reads[name] > s.StartAfter && !s.Stuck[name] {
			s.start(app)
		}
		writeJSON(w, http.StatusOK, map[string]any{"app": app})
	case r.Method == http.MethodPut:
		app, ok := s.apps[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "app does not exist"})
			return
		}
		var body struct {
			Instances int `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		s.resize(app, body.Instances, true)
		writeJSON(w, http.StatusOK, map[string]string{"deploymentId": "scale"})
	case r.Method == http.MethodDelete:
		if _, ok := s.apps[name]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "app does not exist"})
			return
		}
		delete(s.apps, name)
		writeJSON(w, http.StatusOK, map[string]string{"deploymentId": "delete"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "unsupported"})
	}
}

func (s *FakeScheduler) create(w http.ResponseWriter, r *http.Request) {
	var app marathon.App
	if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if _, ok := s.apps[app.Name()]; ok {
		writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("An app with id [%s] already exists.", app.ID)})
		return
	}
	app.Tasks = nil
	s.apps[app.Name()] = &app
	s.resize(&app, app.Instances, false)
	writeJSON(w, http.StatusCreated, app)
}

func (s *FakeScheduler) killTasks(w http.ResponseWriter, name string, q url.Values) {
	app, ok := s.apps[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "app does not exist"})
		return
	}
	host := q.Get("host")
	scale, _ := strconv.ParseBool(q.Get("scale"))

	var kept, killed []marathon.Task
	for _, t := range app.Tasks {
		if t.Host == host {
			killed = append(killed, t)
		} else {
			kept = append(kept, t)
		}
	}
	app.Tasks = kept
	if scale {
		app.Instances -= len(killed)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": killed})
}

// resize adds or drops tasks so the app has n, placing new ones round robin
// on the active agents of its group.
func (s *FakeScheduler) resize(app *marathon.App, n int, started bool) {
	app.Instances = n
	if len(app.Tasks) > n {
		app.Tasks = app.Tasks[:n]
		return
	}
	group, _ := app.Group()
	var hosts []string
	for _, sl := range s.slaves {
		if sl.Active && (group == "" || sl.Group() == group) {
			hosts = append(hosts, sl.Hostname)
		}
	}
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	for i := len(app.Tasks); i < n; i++ {
		s.nextTask++
		t := marathon.Task{
			ID:    fmt.Sprintf("%s.%d", app.Name(), s.nextTask),
			AppID: app.ID,
			Host:  hosts[i%len(hosts)],
		}
		if started {
			t.StartedAt = time.Now().UTC().Format(time.RFC3339)
		}
		app.Tasks = append(app.Tasks, t)
	}
}

func (s *FakeScheduler) start(app *marathon.App) {
	for i := range app.Tasks {
		if app.Tasks[i].StartedAt == "" {
			app.Tasks[i].StartedAt = time.Now().UTC().Format(time.RFC3339)
		}
	}
}

func sortedKeys(m map[string]*marathon.App) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
