package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/state"
	"github.com/visavis/visavis/pkg/version"
)

type stubNode struct {
	id       endpoint.Identity
	status   state.Status
	partner  endpoint.Identity
	muted    bool
	videoOff bool
}

func (n *stubNode) Identity() endpoint.Identity { return n.id }
func (n *stubNode) Status() state.Status        { return n.status }
func (n *stubNode) Partner() endpoint.Identity  { return n.partner }
func (n *stubNode) IsMuted() bool               { return n.muted }
func (n *stubNode) IsVideoOff() bool            { return n.videoOff }

func TestGetStatus(t *testing.T) {
	node := &stubNode{
		id:       "peer-a",
		status:   state.StatusConnected,
		partner:  "peer-b",
		muted:    true,
		videoOff: false,
	}
	ts := httptest.NewServer(New("", node, nil).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var report StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	want := StatusReport{
		Identity: "peer-a",
		Status:   "connected",
		Partner:  "peer-b",
		Muted:    true,
		VideoOff: false,
	}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
}

func TestGetStatusOmitsEmptyPartner(t *testing.T) {
	node := &stubNode{id: "peer-a", status: state.StatusMatching}
	ts := httptest.NewServer(New("", node, nil).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := raw["partner"]; ok {
		t.Fatal("partner present in report without a session")
	}
	if raw["status"] != "matching" {
		t.Fatalf("status = %v, want matching", raw["status"])
	}
}

func TestGetVersion(t *testing.T) {
	ts := httptest.NewServer(New("", &stubNode{}, nil).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer resp.Body.Close()

	var report VersionReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if report.Version != version.Version {
		t.Fatalf("version = %q, want %q", report.Version, version.Version)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := httptest.NewServer(New("", &stubNode{}, nil).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/blocks")
	if err != nil {
		t.Fatalf("GET /blocks: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", resp.StatusCode)
	}
}
