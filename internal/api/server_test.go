package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/pzmanager/internal/api/models"
	"github.com/smazurov/pzmanager/internal/events"
	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
	"github.com/smazurov/pzmanager/internal/process"
	"github.com/smazurov/pzmanager/internal/profiles"
)

const testProfiles = `
version = 1

[servers.main]
install_path = "/srv/pz"
admin_password = "secret"
max_memory = "6G"
jvm_flags = "-Dzomboid.steam=0"
autostart = true

[servers.test]
install_path = "/srv/pz-test"
server_name = "testworld"
`

// fakeSupervisor records calls and answers roster queries over the bus.
type fakeSupervisor struct {
	mu       sync.Mutex
	bus      *events.Bus
	running  map[string]bool
	starts   []launch.Params
	commands []string
	startErr error
	roster   []string
	silent   bool
}

func newFakeSupervisor(bus *events.Bus) *fakeSupervisor {
	return &fakeSupervisor{bus: bus, running: map[string]bool{}}
}

func (f *fakeSupervisor) Start(id, installPath string, params launch.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if params.InstallPath != installPath {
		return fmt.Errorf("install path mismatch: %q != %q", params.InstallPath, installPath)
	}
	f.starts = append(f.starts, params)
	f.running[id] = true
	return nil
}

func (f *fakeSupervisor) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, id)
	return nil
}

func (f *fakeSupervisor) SendCommand(id, text string) error {
	f.mu.Lock()
	f.commands = append(f.commands, text)
	reply := text == "players" && !f.silent
	roster := f.roster
	f.mu.Unlock()

	if reply {
		go func() {
			f.bus.Publish(events.RosterReceivedEvent{ServerID: "other", Players: []string{"mallory"}})
			f.bus.Publish(events.RosterReceivedEvent{ServerID: id, Players: roster, Timestamp: "now"})
		}()
	}
	return nil
}

func (f *fakeSupervisor) Status(id string) process.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[id] {
		return process.Info{ID: id, State: process.StateRunning, RunID: "run-" + id, PID: 100}
	}
	return process.Info{ID: id, State: process.StateStopped}
}

func (f *fakeSupervisor) List() []process.Info {
	f.mu.Lock()
	ids := make([]string, 0, len(f.running))
	for id := range f.running {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	out := make([]process.Info, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.Status(id))
	}
	return out
}

func (f *fakeSupervisor) lastCommand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

type testEnv struct {
	server *Server
	sup    *fakeSupervisor
	bus    *events.Bus
	ts     *httptest.Server
}

func newTestEnv(t *testing.T, opts *Options) *testEnv {
	t.Helper()
	set, err := profiles.Parse([]byte(testProfiles))
	if err != nil {
		t.Fatalf("Failed to parse profiles: %v", err)
	}

	bus := events.New()
	sup := newFakeSupervisor(bus)
	if opts == nil {
		opts = &Options{}
	}
	opts.Supervisor = sup
	opts.Profiles = profiles.NewStore(set)
	opts.EventBus = bus

	server := NewServer(opts)
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)

	return &testEnv{server: server, sup: sup, bus: bus, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func TestHealthAndVersionSkipAuth(t *testing.T) {
	env := newTestEnv(t, &Options{AuthUsername: "admin", AuthPassword: "pw"})

	expectStatus(t, env.do(t, http.MethodGet, "/api/health", ""), http.StatusOK)

	resp := env.do(t, http.MethodGet, "/api/version", "")
	expectStatus(t, resp, http.StatusOK)
	if v := decode[models.VersionData](t, resp); v.GoVersion == "" {
		t.Error("Expected go_version in version response")
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, &Options{AuthUsername: "admin", AuthPassword: "pw"})

	resp := env.do(t, http.MethodGet, "/api/servers", "")
	expectStatus(t, resp, http.StatusUnauthorized)
	if got := resp.Header.Get("WWW-Authenticate"); got != authRealm {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/servers", nil)
	req.SetBasicAuth("admin", "wrong")
	bad, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", bad.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, env.ts.URL+"/api/servers", nil)
	req.SetBasicAuth("admin", "pw")
	ok, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with header auth, got %d", ok.StatusCode)
	}

	creds := base64.StdEncoding.EncodeToString([]byte("admin:pw"))
	expectStatus(t, env.do(t, http.MethodGet, "/api/servers?auth="+creds, ""), http.StatusOK)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &Options{CORSOrigin: "http://panel.lan"})

	resp := env.do(t, http.MethodOptions, "/api/servers/main/start", "")
	expectStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://panel.lan" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestListServers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["adhoc"] = true

	resp := env.do(t, http.MethodGet, "/api/servers", "")
	expectStatus(t, resp, http.StatusOK)
	list := decode[models.ServerListData](t, resp)

	if list.Count != 3 {
		t.Fatalf("Expected 3 servers, got %+v", list.Servers)
	}
	ids := []string{list.Servers[0].ID, list.Servers[1].ID, list.Servers[2].ID}
	if strings.Join(ids, ",") != "adhoc,main,test" {
		t.Errorf("Unexpected order %v", ids)
	}

	adhoc, main, test := list.Servers[0], list.Servers[1], list.Servers[2]
	if adhoc.Configured || adhoc.State != "running" {
		t.Errorf("adhoc = %+v", adhoc)
	}
	if !main.Configured || main.State != "stopped" || !main.Autostart || main.ServerName != "main" {
		t.Errorf("main = %+v", main)
	}
	if test.ServerName != "testworld" || test.InstallPath != "/srv/pz-test" {
		t.Errorf("test = %+v", test)
	}
}

func TestGetServerNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/api/servers/nope", ""), http.StatusNotFound)
}

func TestStartServer(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/servers/main/start", "")
	expectStatus(t, resp, http.StatusAccepted)
	data := decode[models.ServerData](t, resp)
	if data.State != "running" || data.RunID != "run-main" {
		t.Errorf("Unexpected start response %+v", data)
	}

	if len(env.sup.starts) != 1 {
		t.Fatalf("Expected one start, got %d", len(env.sup.starts))
	}
	params := env.sup.starts[0]
	if params.InstallPath != "/srv/pz" || params.AdminPassword != "secret" || params.MaxMemory != "6G" {
		t.Errorf("Unexpected params %+v", params)
	}
	if len(params.ExtraFlags) != 1 || params.ExtraFlags[0] != "-Dzomboid.steam=0" {
		t.Errorf("Unexpected extra flags %v", params.ExtraFlags)
	}
}

func TestStartServerErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/nope/start", ""), http.StatusNotFound)

	env.sup.startErr = fmt.Errorf("plan main: %w", launch.ErrLauncherNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/start", ""), http.StatusUnprocessableEntity)

	env.sup.startErr = fmt.Errorf("%w: java: permission denied", process.ErrSpawn)
	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/start", ""), http.StatusInternalServerError)
}

func TestStopServer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true

	resp := env.do(t, http.MethodPost, "/api/servers/main/stop", "")
	expectStatus(t, resp, http.StatusAccepted)
	if env.sup.running["main"] {
		t.Error("Expected Stop to be called")
	}
}

func TestSendCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/servers/main/command", `{"command":"save"}`)
	expectStatus(t, resp, http.StatusConflict)

	env.sup.running["main"] = true
	resp = env.do(t, http.MethodPost, "/api/servers/main/command", `{"command":"save"}`)
	expectStatus(t, resp, http.StatusOK)
	if got := env.sup.lastCommand(); got != "save" {
		t.Errorf("Expected save, got %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/command", `{"command":""}`), http.StatusUnprocessableEntity)
}

func TestBroadcastMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true

	resp := env.do(t, http.MethodPost, "/api/servers/main/message", `{"message":"Restart in \"5\" minutes"}`)
	expectStatus(t, resp, http.StatusOK)
	if got := env.sup.lastCommand(); got != `servermsg "Restart in '5' minutes"` {
		t.Errorf("Unexpected command %q", got)
	}
}

func TestAdminCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/players/alice/kick", `{"reason":"afk"}`), http.StatusOK)
	if got := env.sup.lastCommand(); got != `kickuser "alice" "afk"` {
		t.Errorf("Unexpected kick command %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/players/bob/ban", ""), http.StatusOK)
	if got := env.sup.lastCommand(); got != `banuser "bob" "Banned by admin"` {
		t.Errorf("Unexpected ban command %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/players/bob/teleport", ""), http.StatusOK)
	if got := env.sup.lastCommand(); got != `teleportto "bob"` {
		t.Errorf("Unexpected teleport command %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/main/save", ""), http.StatusOK)
	if got := env.sup.lastCommand(); got != "save" {
		t.Errorf("Unexpected save command %q", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/servers/test/players/bob/kick", ""), http.StatusConflict)
}

func TestListPlayers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true
	env.sup.roster = []string{"alice", "bob"}

	resp := env.do(t, http.MethodGet, "/api/servers/main/players", "")
	expectStatus(t, resp, http.StatusOK)
	data := decode[models.PlayerListData](t, resp)

	if data.Count != 2 || data.Players[0] != "alice" || data.Players[1] != "bob" {
		t.Errorf("Unexpected roster %+v", data)
	}
	if got := env.sup.lastCommand(); got != "players" {
		t.Errorf("Expected players command, got %q", got)
	}
}

func TestListPlayersEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true

	resp := env.do(t, http.MethodGet, "/api/servers/main/players", "")
	expectStatus(t, resp, http.StatusOK)
	data := decode[models.PlayerListData](t, resp)
	if data.Count != 0 || data.Players == nil {
		t.Errorf("Expected empty non-nil roster, got %+v", data)
	}
}

func TestListPlayersTimeout(t *testing.T) {
	env := newTestEnv(t, &Options{RosterWait: 50 * time.Millisecond})
	env.sup.running["main"] = true
	env.sup.silent = true

	expectStatus(t, env.do(t, http.MethodGet, "/api/servers/main/players", ""), http.StatusGatewayTimeout)
}

func TestPrometheusHandler(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "pzmanager_server_starts_total 1")
	})
	env := newTestEnv(t, &Options{PrometheusHandler: handler})

	resp := env.do(t, http.MethodGet, "/metrics", "")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pzmanager_server_starts_total") {
		t.Errorf("Unexpected metrics body %q", body)
	}
}

func readSSE(t *testing.T, resp *http.Response) <-chan string {
	t.Helper()
	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	return lines
}

func nextSSE(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		if !ok {
			t.Fatal("SSE stream closed")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for SSE line")
	}
	return ""
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sup.running["main"] = true

	resp := env.do(t, http.MethodGet, "/api/events?server=main", "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %s", ct)
	}
	lines := readSSE(t, resp)

	if got := nextSSE(t, lines); got != "event: status" {
		t.Fatalf("Expected status snapshot, got %q", got)
	}
	if got := nextSSE(t, lines); !strings.Contains(got, `"state":"running"`) {
		t.Fatalf("Unexpected snapshot %q", got)
	}

	// The subscription is live once the snapshot has been sent.
	env.bus.Publish(events.LogReceivedEvent{ServerID: "other", Message: "ignored"})
	env.bus.Publish(events.LogReceivedEvent{ServerID: "main", Message: "LOG  : Server started"})
	env.bus.Publish(events.RosterReceivedEvent{ServerID: "main", Players: []string{"alice"}})

	want := []string{"event: log", "Server started", "event: roster", "alice"}
	for _, w := range want {
		if got := nextSSE(t, lines); !strings.Contains(got, w) {
			t.Fatalf("Expected %q, got %q", w, got)
		}
	}
}

func TestLogStreamTail(t *testing.T) {
	logging.Initialize(logging.Config{Level: "warn", BufferSize: 10})
	logger := logging.GetLogger("logstream-test")
	for _, m := range []string{"first", "second", "third"} {
		logger.Warn(m)
	}

	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/logs/stream?tail=2", "")
	expectStatus(t, resp, http.StatusOK)
	lines := readSSE(t, resp)

	var data []string
	for len(data) < 2 {
		if line := nextSSE(t, lines); strings.HasPrefix(line, "data:") {
			data = append(data, line)
		}
	}
	if !strings.Contains(data[0], `"message":"second"`) || !strings.Contains(data[1], `"message":"third"`) {
		t.Fatalf("Expected the last two entries, got %v", data)
	}

	env.bus.Publish(events.LogEntryEvent{Level: "warn", Module: "live", Message: "fourth"})
	for {
		line := nextSSE(t, lines)
		if strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"message":"fourth"`) {
				t.Fatalf("Expected live entry, got %q", line)
			}
			return
		}
	}
}
