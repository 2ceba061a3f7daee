package main

import (
	"docgate/identity/identitytest"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRunEnv(t *testing.T, srv *identitytest.Server) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("SUPABASE_URL", srv.URL)
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("SITE_URL", "https://docs.example.com")
	t.Setenv("ALLOWLIST_FILE", "")
	t.Setenv("SENDGRID_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
}

func TestRunIssuesApprovedAddresses(t *testing.T) {
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	setRunEnv(t, srv)

	require.Equal(t, 0, run())
	require.Equal(t, []string{"gksmartdba@gmail.com"}, srv.GeneratedFor())
}

func TestRunReportsProviderFailure(t *testing.T) {
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	setRunEnv(t, srv)
	srv.FailGenerate("gksmartdba@gmail.com", "User not allowed")

	require.Equal(t, 1, run())
}

func TestRunStopsOnBadDatabaseURL(t *testing.T) {
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	setRunEnv(t, srv)
	t.Setenv("DATABASE_URL", "postgres://localhost:badport/docs")

	require.Equal(t, 1, run())
	require.Empty(t, srv.GeneratedFor())
}

func TestRunRequiresServiceKey(t *testing.T) {
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	setRunEnv(t, srv)
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")

	require.Equal(t, 1, run())
	require.Empty(t, srv.GeneratedFor())
}
