package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pabench/internal/config"
	"pabench/internal/worlds"
)

type fakeProvisioner struct {
	calls int
	ep    worlds.Endpoints
	err   error
}

func (f *fakeProvisioner) CreateInstances(ctx context.Context, baseURL string) (worlds.Endpoints, error) {
	f.calls++
	return f.ep, f.err
}

func noEnv(string) string { return "" }

func TestResolveEndpointsPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("GMAIL_INSTANCE_URL=http://file-mail\nCALENDAR_INSTANCE_URL=http://file-cal\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	env := map[string]string{CalendarURLEnv: "http://env-cal"}
	p := &fakeProvisioner{}
	ep, err := ResolveEndpoints(context.Background(), EndpointOptions{
		MailboxURL: "http://flag-mail",
		EnvFile:    envFile,
		Create:     true,
		Getenv:     func(k string) string { return env[k] },
	}, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ep.Mailbox != "http://flag-mail" || ep.Calendar != "http://env-cal" {
		t.Fatalf("unexpected endpoints: %+v", ep)
	}
	if p.calls != 0 {
		t.Fatalf("provisioner should not be called")
	}

	ep, err = ResolveEndpoints(context.Background(), EndpointOptions{EnvFile: envFile, Getenv: noEnv}, nil)
	if err != nil {
		t.Fatalf("resolve from file: %v", err)
	}
	if ep.Mailbox != "http://file-mail" || ep.Calendar != "http://file-cal" {
		t.Fatalf("unexpected endpoints from file: %+v", ep)
	}
}

func TestResolveEndpointsMissingWithoutCreate(t *testing.T) {
	_, err := ResolveEndpoints(context.Background(), EndpointOptions{
		MailboxURL: "http://mail",
		EnvFile:    filepath.Join(t.TempDir(), ".env"),
		Getenv:     noEnv,
	}, &fakeProvisioner{})
	if !errors.Is(err, ErrEndpointsUndefined) {
		t.Fatalf("expected ErrEndpointsUndefined, got %v", err)
	}
	if !strings.Contains(err.Error(), CalendarURLEnv) || strings.Contains(err.Error(), MailboxURLEnv) {
		t.Fatalf("error should name only the missing variable: %v", err)
	}
}

func TestResolveEndpointsCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OTHER=1\nGMAIL_INSTANCE_URL=\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	p := &fakeProvisioner{ep: worlds.Endpoints{Mailbox: "http://m.test", Calendar: "http://c.test"}}
	ep, err := ResolveEndpoints(context.Background(), EndpointOptions{EnvFile: envFile, Create: true, Getenv: noEnv}, p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.calls != 1 || ep != p.ep {
		t.Fatalf("unexpected result: calls=%d ep=%+v", p.calls, ep)
	}
	data, err := os.ReadFile(envFile)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	want := "OTHER=1\nGMAIL_INSTANCE_URL=http://m.test\nCALENDAR_INSTANCE_URL=http://c.test\n"
	if string(data) != want {
		t.Fatalf("unexpected env file:\n%s", data)
	}
}

func TestResolveEndpointsCreateFailure(t *testing.T) {
	p := &fakeProvisioner{err: errors.New("boom")}
	if _, err := ResolveEndpoints(context.Background(), EndpointOptions{Create: true, Getenv: noEnv}, p); err == nil || !strings.Contains(err.Error(), "create instances") {
		t.Fatalf("expected create error, got %v", err)
	}
}

func TestEndpointOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Worlds.GmailURL = "http://mail"
	opts := EndpointOptionsFromConfig("/ws", cfg)
	if opts.MailboxURL != "http://mail" || opts.EnvFile != filepath.Join("/ws", ".env") || !opts.Create {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestLiveFetchesThroughResolvedEndpoints(t *testing.T) {
	mail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"emails":[{"id":"m1","subject":"Hi"}]}`))
	}))
	defer mail.Close()
	cal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events":[{"id":"e1","title":"Sync"}],"otherUsersEvents":{}}`))
	}))
	defer cal.Close()

	live := Live{
		Options: EndpointOptions{MailboxURL: mail.URL, CalendarURL: cal.URL, Getenv: noEnv},
		Client:  worlds.New(5 * time.Second),
	}
	st, err := live.FetchState(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(st.Emails) != 1 || len(st.Events) != 1 || st.Events[0].Title != "Sync" {
		t.Fatalf("unexpected state: %+v", st)
	}

	unresolved := Live{Options: EndpointOptions{Getenv: noEnv}, Client: worlds.New(time.Second)}
	if _, err := unresolved.FetchState(context.Background()); !errors.Is(err, ErrEndpointsUndefined) {
		t.Fatalf("expected ErrEndpointsUndefined, got %v", err)
	}
}
