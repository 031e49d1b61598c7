package backendapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"building-monitor/internal/auth"
	masterdata "building-monitor/internal/masterdata/domain"
	reports "building-monitor/internal/reports/domain"
)

func TestFetchAggregationSendsQuery(t *testing.T) {
	var gotPath, gotToken string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("x-token")
		gotQuery = map[string]string{
			"environment": r.URL.Query().Get("environment"),
			"fromDate":    r.URL.Query().Get("fromDate"),
			"toDate":      r.URL.Query().Get("toDate"),
		}
		_, _ = w.Write([]byte(`{"labels":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", WithToken("service"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	q := reports.Query{
		EnvironmentID: "lab",
		From:          time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		To:            time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC),
	}
	ctx := auth.WithToken(context.Background(), "operator-token")
	raw, err := c.FetchAggregation(ctx, "/reports/gases/resume/", q)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(raw) != `{"labels":[]}` {
		t.Fatalf("unexpected payload %s", raw)
	}
	if gotPath != "/reports/gases/resume/" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotToken != "operator-token" {
		t.Fatalf("expected forwarded operator token, got %q", gotToken)
	}
	if gotQuery["fromDate"] != "2024-05-01 08:00:00" || gotQuery["toDate"] != "2024-05-01 18:30:00" || gotQuery["environment"] != "lab" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
}

func TestGetOrganizationDecodesPopulatedCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organization":{"_id":"o1","name":"Edificio","city":{"_id":"c1","name":"Córdoba"},"logo":"uploads/logo.png"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	org, err := c.GetOrganization(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if org.ID != "o1" || org.CityID != "c1" || org.CityName != "Córdoba" || org.Logo != "uploads/logo.png" {
		t.Fatalf("unexpected organization %+v", org)
	}
}

func TestGetOrganizationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c, _ := NewClient(srv.URL)
	if _, err := c.GetOrganization(context.Background()); !errors.Is(err, masterdata.ErrNotFound) {
		t.Fatalf("expected masterdata.ErrNotFound, got %v", err)
	}
}

func TestStatusErrorCarriesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"msg":"Organización inválida"}`))
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL)
	err := c.SaveOrganization(context.Background(), masterdata.Organization{ID: "o1", Name: "x"})
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != http.StatusBadRequest || serr.Message != "Organización inválida" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestListEnvironmentsAndFetchFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/environments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"environments":[{"_id":"e1","name":"Laboratorio"}]}`))
	})
	mux.HandleFunc("/uploads/logo.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\x89PNG"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := NewClient(srv.URL+"/api", WithFileBaseURL(srv.URL))
	envs, err := c.ListEnvironments(context.Background())
	if err != nil || len(envs) != 1 || envs[0].Name != "Laboratorio" {
		t.Fatalf("unexpected environments %+v err=%v", envs, err)
	}
	data, err := c.FetchFile(context.Background(), "/uploads/logo.png")
	if err != nil || string(data) != "\x89PNG" {
		t.Fatalf("unexpected file %q err=%v", data, err)
	}
	if _, err := c.FetchFile(context.Background(), "missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
