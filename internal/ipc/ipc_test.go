package ipc

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeHandler struct {
	displays []DisplayInfo
	updates  int
	reset    []string
	resetErr error
}

func (h *fakeHandler) Status() (StatusData, error) {
	return StatusData{EngineState: "idle", DisplayCount: len(h.displays), Passes: 3}, nil
}

func (h *fakeHandler) Displays() ([]DisplayInfo, error) {
	return h.displays, nil
}

func (h *fakeHandler) Update() error {
	h.updates++
	return nil
}

func (h *fakeHandler) ResetGamma(name string) error {
	h.reset = append(h.reset, name)
	return h.resetErr
}

func startServer(t *testing.T, h Handler) *Client {
	t.Helper()
	// unix socket paths are length limited; keep this one short
	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	socket := filepath.Join(dir, "s.sock")
	srv := NewServer(socket, h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)

	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("socket mode = %o, want 600", perm)
	}
	return NewClientAt(socket)
}

func TestStatusAndDisplays(t *testing.T) {
	h := &fakeHandler{displays: []DisplayInfo{
		{Ordinal: 0, Name: "Dell U2720Q", Connector: "DP-1", Primary: true, Driven: true, Gamma: 2.2},
		{Ordinal: 1, Name: "eDP-1", Connector: "eDP-1", Laptop: true},
	}}
	client := startServer(t, h)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.DaemonRunning || status.EngineState != "idle" || status.DisplayCount != 2 || status.Passes != 3 {
		t.Fatalf("status = %+v", status)
	}

	data, err := client.ListDisplays()
	if err != nil {
		t.Fatalf("ListDisplays: %v", err)
	}
	if len(data.Displays) != 2 || data.Displays[0].Name != "Dell U2720Q" || !data.Displays[1].Laptop {
		t.Fatalf("displays = %+v", data.Displays)
	}
}

func TestEmptyDisplayListIsArray(t *testing.T) {
	client := startServer(t, &fakeHandler{})

	data, err := client.ListDisplays()
	if err != nil {
		t.Fatalf("ListDisplays: %v", err)
	}
	if data.Displays == nil || len(data.Displays) != 0 {
		t.Fatalf("displays = %#v", data.Displays)
	}
}

func TestUpdateAndReset(t *testing.T) {
	h := &fakeHandler{}
	client := startServer(t, h)

	if err := client.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if h.updates != 1 {
		t.Fatalf("updates = %d", h.updates)
	}

	if err := client.ResetGamma("DP-1"); err != nil {
		t.Fatalf("ResetGamma: %v", err)
	}
	if len(h.reset) != 1 || h.reset[0] != "DP-1" {
		t.Fatalf("reset = %v", h.reset)
	}

	h.resetErr = errors.New("no display named nope")
	err := client.ResetGamma("nope")
	if err == nil || !strings.Contains(err.Error(), "no display named nope") {
		t.Fatalf("ResetGamma error = %v", err)
	}

	if err := client.ResetGamma(""); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("empty name error = %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	srv := NewServer(filepath.Join(t.TempDir(), "unused.sock"), &fakeHandler{}, nil)
	resp := srv.handleCommand(&Request{Command: "FLY"})
	if resp.Status != "ERROR" || !strings.Contains(resp.Error, "Unknown command") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	client := NewClientAt(filepath.Join(t.TempDir(), "missing.sock"))
	if err := client.Ping(); err == nil || !strings.Contains(err.Error(), "is the daemon running?") {
		t.Fatalf("Ping error = %v", err)
	}
}
