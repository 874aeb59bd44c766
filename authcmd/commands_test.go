package authcmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/mfeller/deskauth"
	"github.com/mfeller/deskauth/deeplink"
	"github.com/mfeller/deskauth/tokenstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedExchanger returns a fixed token set for any code.
type scriptedExchanger struct {
	tokens *deskauth.TokenSet
	calls  int
}

func (e *scriptedExchanger) Exchange(context.Context, string, string, string) (*deskauth.TokenSet, error) {
	e.calls++
	return e.tokens, nil
}

func testSuite(t *testing.T, in io.Reader) (*Suite, *bytes.Buffer) {
	t.Helper()
	cfg := &deskauth.Config{
		AuthorizeBaseURL: "https://auth.example.com",
		ClientID:         "client-123",
		Scheme:           "myapp",
		RedirectURI:      "myapp://auth/callback",
	}

	flow := deskauth.NewFlow(cfg,
		deskauth.WithExchanger(&scriptedExchanger{tokens: &deskauth.TokenSet{IDToken: "idt", AccessToken: "upstream-at"}}),
		deskauth.WithBrowserOpen(func(string) error { return nil }),
		deskauth.WithFlowLogger(quietLogger()),
	)

	s := &Suite{
		Config:     cfg,
		Flow:       flow,
		Dispatcher: deeplink.NewDispatcher("myapp", deeplink.WithLogger(quietLogger())),
		Store:      tokenstore.New("deskauth-test", tokenstore.WithBackend(tokenstore.NewMemoryBackend()), tokenstore.WithLogger(quietLogger())),
		In:         in,
	}
	t.Cleanup(s.Dispatcher.Close)

	return s, &bytes.Buffer{}
}

// setWriterOnAllCommands sets the writer on all commands and subcommands;
// cli v3 does not propagate the root Writer to subcommand actions.
func setWriterOnAllCommands(cmd *cli.Command, w io.Writer) {
	cmd.Writer = w
	for _, subCmd := range cmd.Commands {
		setWriterOnAllCommands(subCmd, w)
	}
}

func run(t *testing.T, s *Suite, out *bytes.Buffer, args ...string) error {
	t.Helper()
	root := &cli.Command{
		Name:     "testshell",
		Writer:   out,
		Commands: []*cli.Command{Commands(s)},
	}
	setWriterOnAllCommands(root, out)
	return root.Run(context.Background(), append([]string{"testshell"}, args...))
}

func TestLogin_PastedCallback(t *testing.T) {
	// The direct-token callback needs no state coordination, so a
	// pre-scripted input line can complete the flow.
	in := strings.NewReader("myapp://auth/callback?token=eyJpasted\n")
	s, out := testSuite(t, in)

	require.NoError(t, run(t, s, out, "auth", "login", "--account", "acct-1"))
	assert.Contains(t, out.String(), "Signed in.")

	tok, ok, err := s.Store.Load(context.Background(), "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "eyJpasted", tok)
}

func TestLogin_ProviderErrorSurfaces(t *testing.T) {
	in := strings.NewReader("myapp://auth/callback?error=access_denied\n")
	s, out := testSuite(t, in)

	err := run(t, s, out, "auth", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")

	_, ok, _ := s.Store.Load(context.Background(), "")
	assert.False(t, ok, "no token stored on failed sign-in")
}

func TestStatus(t *testing.T) {
	s, out := testSuite(t, strings.NewReader(""))

	require.NoError(t, run(t, s, out, "auth", "status"))
	assert.Contains(t, out.String(), "Not signed in.")

	require.NoError(t, s.Store.Save(context.Background(), "eyJsomething-quite-long", ""))
	out.Reset()
	require.NoError(t, run(t, s, out, "auth", "status"))
	assert.Contains(t, out.String(), "Signed in.")
	assert.NotContains(t, out.String(), "eyJsomething-quite-long", "full token never printed")
}

func TestLogout_ClearsStoredToken(t *testing.T) {
	s, out := testSuite(t, strings.NewReader(""))
	require.NoError(t, s.Store.Save(context.Background(), "tok", "acct-2"))

	require.NoError(t, run(t, s, out, "auth", "logout", "--account", "acct-2"))
	assert.Contains(t, out.String(), "Logged out.")

	_, ok, _ := s.Store.Load(context.Background(), "acct-2")
	assert.False(t, ok)
}

func TestCommands_OmitsEventsWithoutRealtime(t *testing.T) {
	s, _ := testSuite(t, strings.NewReader(""))
	cmd := Commands(s)

	names := make([]string, 0, len(cmd.Commands))
	for _, c := range cmd.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"login", "logout", "status"}, names)
}
