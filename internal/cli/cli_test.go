package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/soyeahso/agentdesk/internal/backendtest"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHome isolates config and credentials under a temp directory.
func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("AGENTDESK_HOME", home)
	t.Setenv("AGENTDESK_TOKEN", "")
	t.Setenv("AGENTDESK_API_URL", "")
	t.Setenv("AGENTDESK_AUTH_STORE", "")
	t.Setenv("AGENTDESK_LOG_LEVEL", "")
	return home
}

type result struct {
	stdout string
	stderr string
}

func run(t *testing.T, backend *backendtest.Server, stdin string, args ...string) (result, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	full := []string{"--log-level", "silent"}
	if backend != nil {
		full = append(full, "--api-url", backend.URL)
	}
	cmd.SetArgs(append(full, args...))
	err := cmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String()}, err
}

func mustRun(t *testing.T, backend *backendtest.Server, args ...string) string {
	t.Helper()
	res, err := run(t, backend, "", args...)
	require.NoError(t, err, "stderr: %s", res.stderr)
	return res.stdout
}

// loggedIn creates an account and logs in with it.
func loggedIn(t *testing.T, backend *backendtest.Server, role domain.UserRole) domain.User {
	t.Helper()
	_, u := backend.AddUser("ada@example.com", "secret", role)
	out := mustRun(t, backend, "login", "--email", "ada@example.com", "--password", "secret")
	require.Contains(t, out, "Logged in as ada@example.com")
	return u
}

func TestVersion(t *testing.T) {
	testHome(t)
	assert.Contains(t, mustRun(t, nil, "version"), "agentdesk dev")
}

func TestLogin_StoresTokenFile(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	data, err := os.ReadFile(filepath.Join(home, "credentials", "token"))
	require.NoError(t, err)
	assert.Equal(t, "token-ada@example.com", strings.TrimSpace(string(data)))

	out := mustRun(t, backend, "whoami")
	assert.Contains(t, out, "Email:  ada@example.com")
	assert.Contains(t, out, "Role:   user")
}

func TestLogin_WithToken(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)
	tok, _ := backend.AddUser("ada@example.com", "secret", domain.UserRoleUser)

	res, err := run(t, backend, "", "login", "--token", tok)
	require.NoError(t, err)
	assert.Contains(t, res.stdout, "Logged in as ada@example.com (user)")
	tokenFile := filepath.Join(home, "credentials", "token")
	assert.Contains(t, res.stderr, "Token saved to "+tokenFile)

	data, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, tok, strings.TrimSpace(string(data)))
	assert.Contains(t, mustRun(t, backend, "whoami"), "Email:  ada@example.com")
}

func TestLogin_WithRejectedToken(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)

	_, err := run(t, backend, "", "login", "--token", "bogus")
	assert.True(t, domain.IsAuthError(err), "%v", err)
	assert.NoFileExists(t, filepath.Join(home, "credentials", "token"))
}

func TestLogin_PromptsForMissingFields(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	backend.AddUser("ada@example.com", "secret", domain.UserRoleUser)

	res, err := run(t, backend, "ada@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, res.stdout, "Logged in as ada@example.com")
	assert.Contains(t, res.stderr, "Password: ")
}

func TestLogin_BadPassword(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	backend.AddUser("ada@example.com", "secret", domain.UserRoleUser)

	_, err := run(t, backend, "", "login", "--email", "ada@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Contains(t, err.Error(), "incorrect email or password")
}

func TestNotLoggedIn(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)

	_, err := run(t, backend, "", "agents", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agentdesk login")
}

func TestRejectedTokenIsCleared(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	backend.Lock()
	delete(backend.Users, "token-ada@example.com")
	backend.Unlock()

	_, err := run(t, backend, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agentdesk login")
	_, statErr := os.Stat(filepath.Join(home, "credentials", "token"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogout(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	assert.Contains(t, mustRun(t, backend, "logout"), "Logged out")
	_, err := run(t, backend, "", "whoami")
	assert.ErrorContains(t, err, "not logged in")
}

func TestRegister(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)

	out := mustRun(t, backend, "register", "--email", "vi@example.com", "--password", "pw", "--name", "Vi", "--role", "viewer")
	assert.Contains(t, out, "Registered and logged in as vi@example.com (viewer)")
	assert.Contains(t, mustRun(t, backend, "whoami"), "Name:   Vi")
}

func TestRegister_UnknownRole(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	_, err := run(t, backend, "", "register", "--email", "x@example.com", "--password", "pw", "--role", "root")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestEnvTokenSkipsStore(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)
	tok, _ := backend.AddUser("env@example.com", "pw", domain.UserRoleUser)
	t.Setenv("AGENTDESK_TOKEN", tok)

	assert.Contains(t, mustRun(t, backend, "whoami"), "env@example.com")
	_, err := os.Stat(filepath.Join(home, "credentials", "token"))
	assert.True(t, os.IsNotExist(err))
}

func TestSQLiteTokenStore(t *testing.T) {
	home := testHome(t)
	t.Setenv("AGENTDESK_AUTH_STORE", "sqlite")
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	assert.FileExists(t, filepath.Join(home, "data", "agentdesk.db"))
	assert.Contains(t, mustRun(t, backend, "whoami"), "ada@example.com")
}

func TestAgentsLifecycle(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	assert.Contains(t, mustRun(t, backend, "agents", "list"), "No agents yet")

	out := mustRun(t, backend, "agents", "create", "--name", "Scout", "--prompt", "Find things", "--tool", "web_search")
	assert.Contains(t, out, "Created agent")
	assert.Contains(t, out, "Tools:  web search")

	backend.Lock()
	var id int64
	for k := range backend.Agents {
		id = k
	}
	backend.Unlock()
	sid := strings.TrimSpace(strings.TrimPrefix(strings.Split(out, "\n")[0], "Created agent "))

	list := mustRun(t, backend, "agents", "list")
	assert.Contains(t, list, "Scout")

	out = mustRun(t, backend, "agents", "update", sid, "--name", "Scout II", "--no-tools")
	assert.Contains(t, out, "Name:   Scout II")
	assert.Contains(t, out, "Tools:  -")
	backend.Lock()
	assert.Empty(t, backend.Agents[id].Tools)
	assert.Equal(t, "Find things", backend.Agents[id].SystemPrompt)
	backend.Unlock()

	assert.Contains(t, mustRun(t, backend, "agents", "show", sid), "Prompt:\n  Find things")
	assert.Contains(t, mustRun(t, backend, "agents", "delete", sid), "Deleted agent "+sid)

	_, err := run(t, backend, "", "agents", "show", sid)
	assert.EqualError(t, err, "agent "+sid+" not found")
	_, err = run(t, backend, "", "history", sid)
	assert.EqualError(t, err, "agent "+sid+" not found")
}

func TestAgentsCreate_PlanLimit(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	mustRun(t, backend, "agents", "create", "--name", "First", "--prompt", "p")

	_, err := run(t, backend, "", "agents", "create", "--name", "Second", "--prompt", "p")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "agents", ve.Field)
	assert.Equal(t, "agent limit reached for your plan", ve.Message)

	backend.Lock()
	assert.Len(t, backend.Agents, 1)
	backend.Unlock()
}

func TestAgentsWrite_ViewerForbidden(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleViewer)
	a := backend.AddAgent(domain.Agent{Name: "A", SystemPrompt: "p", OwnerID: u.ID})

	for _, args := range [][]string{
		{"agents", "create", "--name", "B", "--prompt", "p"},
		{"agents", "update", idArg(a.ID), "--name", "C"},
		{"agents", "delete", idArg(a.ID)},
	} {
		_, err := run(t, backend, "", args...)
		var ae *domain.AuthError
		require.ErrorAs(t, err, &ae, "%v", args)
		assert.True(t, ae.Forbidden, "%v", args)
		assert.NotContains(t, err.Error(), "agentdesk login", "%v", args)
	}

	backend.Lock()
	assert.Len(t, backend.Agents, 1)
	assert.Equal(t, "A", backend.Agents[a.ID].Name)
	backend.Unlock()
}

func TestAgentsCreate_Validation(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	_, err := run(t, backend, "", "agents", "create", "--prompt", "x")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = run(t, backend, "", "agents", "create", "--name", "A", "--prompt", "x", "--tool", "teleport")
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, `unknown tool "teleport"`)

	backend.Lock()
	assert.Empty(t, backend.Agents)
	backend.Unlock()
}

func TestAgentsUpdate_NothingToChange(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)
	a := backend.AddAgent(domain.Agent{Name: "A", SystemPrompt: "p"})

	_, err := run(t, backend, "", "agents", "update", idArg(a.ID))
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestInvalidID(t *testing.T) {
	testHome(t)
	_, err := run(t, nil, "", "agents", "show", "abc")
	assert.ErrorContains(t, err, `invalid id "abc"`)
}

func TestChatSend(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleUser)
	a := backend.AddAgent(domain.Agent{Name: "Echo", SystemPrompt: "Repeat", OwnerID: u.ID})

	res, err := run(t, backend, "", "chat", "send", idArg(a.ID), "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "You said: hello there\n", res.stdout)
	assert.Contains(t, res.stderr, "0.50s")

	received := backend.Received()
	require.Len(t, received, 2)
	assert.Equal(t, stream.EventStartChat, received[0].Event)
	var msg stream.ChatMessage
	require.NoError(t, received[1].Decode(&msg))
	assert.Equal(t, "hello there", msg.Message)
}

func TestChatSend_WaitsForMessageHooks(t *testing.T) {
	home := testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleUser)
	a := backend.AddAgent(domain.Agent{Name: "Echo", SystemPrompt: "Repeat", OwnerID: u.ID})

	marker := filepath.Join(home, "sent")
	conf := "hooks:\n  messageSending:\n    - command: 'sleep 0.3 && touch " + marker + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(conf), 0o600))

	mustRun(t, backend, "chat", "send", idArg(a.ID), "hello")
	assert.FileExists(t, marker)
}

func TestChatSend_ServerError(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleUser)
	a := backend.AddAgent(domain.Agent{Name: "Broken", SystemPrompt: "x", OwnerID: u.ID})
	backend.Lock()
	backend.Script = func(domain.Agent, string) []stream.Frame {
		return []stream.Frame{
			backendtest.Frame(stream.EventToolStart, stream.ToolStart{Name: "web_search"}),
			backendtest.Frame(stream.EventError, stream.ErrorPayload{Message: "LLM unavailable"}),
		}
	}
	backend.Unlock()

	res, err := run(t, backend, "", "chat", "send", idArg(a.ID), "hi")
	var ce *domain.ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "LLM unavailable", ce.Message)
	assert.Contains(t, res.stderr, "Using tool: web search...")
}

func TestChatSend_UnknownAgent(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	_, err := run(t, backend, "", "chat", "send", "999", "hi")
	var le *domain.LoadError
	assert.ErrorAs(t, err, &le)
}

func TestHistory(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleUser)
	a := backend.AddAgent(domain.Agent{Name: "A", SystemPrompt: "p", OwnerID: u.ID})

	assert.Contains(t, mustRun(t, backend, "history", idArg(a.ID)), "No messages yet.")

	rt := 1.25
	backend.Lock()
	backend.History[a.ID] = []domain.ConversationMessage{
		{ServerID: 1, Role: domain.RoleHuman, Content: "hi"},
		{ServerID: 2, Role: domain.RoleAI, Content: "hello", ResponseTimeSeconds: &rt},
	}
	backend.Unlock()

	out := mustRun(t, backend, "history", idArg(a.ID))
	assert.Contains(t, out, "You:\nhi\n")
	assert.Contains(t, out, "Agent:\nhello\n(1.25s)")
}

func TestProfileUpdate(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	out := mustRun(t, backend, "profile", "update", "--name", "Ada Lovelace")
	assert.Contains(t, out, "Profile updated")
	assert.Contains(t, mustRun(t, backend, "profile"), "Name:   Ada Lovelace")

	_, err := run(t, backend, "", "profile", "update")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestPlansUsageMeter(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	backend.Lock()
	u := backend.Users["token-ada@example.com"]
	u.TokenUsageThisMonth = 8000
	backend.Users["token-ada@example.com"] = u
	backend.Unlock()

	out := mustRun(t, backend, "plans")
	assert.Contains(t, out, "free")
	assert.Contains(t, out, "(current)")
	assert.Contains(t, out, "80.0% (8000/10000)")
	assert.Contains(t, out, "approaching your plan limit")
}

func TestBilling(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	u := loggedIn(t, backend, domain.UserRoleUser)

	assert.Equal(t, "https://billing.example/checkout/"+idArg(u.ID)+"\n", mustRun(t, backend, "billing", "checkout"))
	assert.Equal(t, "https://billing.example/portal/"+idArg(u.ID)+"\n", mustRun(t, backend, "billing", "portal"))
}

func TestIntegrations(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	assert.Contains(t, mustRun(t, backend, "integrations", "list"), "No integrations.")

	_, err := run(t, backend, "", "integrations", "add", "--service", "github")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "token", ve.Field)

	out := mustRun(t, backend, "integrations", "add", "--service", "github", "--token", "ghp_x")
	assert.Contains(t, out, "Added github integration")

	assert.Contains(t, mustRun(t, backend, "integrations", "list"), "github")

	backend.Lock()
	var id int64
	for k := range backend.Integrations {
		id = k
	}
	backend.Unlock()
	assert.Contains(t, mustRun(t, backend, "integrations", "remove", idArg(id)), "Removed integration")
	assert.Contains(t, mustRun(t, backend, "integrations", "list"), "No integrations.")
}

func TestTools(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	out := mustRun(t, backend, "tools")
	assert.Contains(t, out, "web_search")
	assert.Contains(t, out, "Calculator")
}

func TestAdmin_RoleGate(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleUser)

	for _, args := range [][]string{
		{"admin", "users"},
		{"admin", "analytics"},
		{"admin", "audit-log", "-o", "-"},
	} {
		_, err := run(t, backend, "", args...)
		var ae *domain.AuthError
		assert.ErrorAs(t, err, &ae, "%v", args)
	}
}

func TestAdmin_Users(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	me := loggedIn(t, backend, domain.UserRoleAdmin)
	_, other := backend.AddUser("bob@example.com", "pw", domain.UserRoleViewer)

	out := mustRun(t, backend, "admin", "users")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "bob@example.com")

	_, err := run(t, backend, "", "admin", "users", "delete", idArg(me.ID))
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	assert.Contains(t, mustRun(t, backend, "admin", "users", "delete", idArg(other.ID)), "Deleted user")
	assert.NotContains(t, mustRun(t, backend, "admin", "users"), "bob@example.com")
}

func TestAdmin_Analytics(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleAdmin)

	backend.Lock()
	backend.Analytics = domain.Analytics{
		TotalUsers: 3, TotalAgents: 4, TotalMessages: 50, AvgResponseTime: 1.5, TotalTokensUsed: 900,
		MessagesTimeSeries: []domain.TimeSeriesPoint{
			{Date: "2024-05-01", Messages: 10},
			{Date: "2024-05-02", Messages: 20},
		},
	}
	backend.Unlock()

	out := mustRun(t, backend, "admin", "analytics")
	assert.Contains(t, out, "Messages:           50")
	assert.Contains(t, out, "Avg response time:  1.50s")
	assert.Contains(t, out, "Thu May 02")
	assert.Contains(t, out, strings.Repeat("#", meterWidth)+" 20")
}

func TestAdmin_AuditLog(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)
	loggedIn(t, backend, domain.UserRoleAdmin)

	path := filepath.Join(t.TempDir(), "audit.csv")
	out := mustRun(t, backend, "admin", "audit-log", "--out", path)
	assert.Contains(t, out, "Wrote 1 audit entries")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,user_id,action,timestamp\n"))

	assert.Contains(t, mustRun(t, backend, "admin", "audit-log", "-o", "-"), "1,1,login")
}

func TestConfigSetGetUnset(t *testing.T) {
	home := testHome(t)

	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", mustRun(t, nil, "config", "path"))

	assert.Contains(t, mustRun(t, nil, "config", "set", "chat.render", "plain"), "Set chat.render = plain")
	assert.Equal(t, "plain\n", mustRun(t, nil, "config", "get", "chat.render"))

	mustRun(t, nil, "config", "set", "api.timeoutSeconds", "5")
	assert.Equal(t, "5\n", mustRun(t, nil, "config", "get", "api.timeoutSeconds"))
	assert.Contains(t, mustRun(t, nil, "config", "get", "api"), "timeoutSeconds: 5")

	mustRun(t, nil, "config", "unset", "chat.render")
	_, err := run(t, nil, "", "config", "get", "chat.render")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, nil, "", "config", "set", "auth.token", "x")
	assert.ErrorContains(t, err, "blocked key")
}

func TestConfigFileFlag(t *testing.T) {
	testHome(t)
	path := filepath.Join(t.TempDir(), "nested", "custom.yaml")
	mustRun(t, nil, "--config", path, "config", "set", "logging.level", "debug")
	assert.FileExists(t, path)
}

func TestStatus(t *testing.T) {
	testHome(t)
	backend := backendtest.New(t)

	out := mustRun(t, backend, "status")
	assert.Contains(t, out, "API:     "+backend.URL)
	assert.Contains(t, out, "Socket:  ws://")
	assert.Contains(t, out, "not logged in")

	loggedIn(t, backend, domain.UserRoleUser)
	assert.Contains(t, mustRun(t, backend, "status"), "Login:   ada@example.com (user, plan free)")
	assert.NotContains(t, mustRun(t, backend, "status", "--offline"), "Login:")
}

func TestStatus_Hooks(t *testing.T) {
	home := testHome(t)
	conf := "hooks:\n  messageSending:\n    - command: 'true'\n    - command: 'true'\n  sessionEnd:\n    - command: 'true'\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(conf), 0o600))

	out := mustRun(t, nil, "status", "--offline")
	assert.Contains(t, out, "Hooks:   3 command(s)")
	assert.Regexp(t, `message_sending\s+2`, out)
	assert.Regexp(t, `session_end\s+1`, out)
	assert.NotContains(t, out, "tool_start")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("FALSE"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 2.5, parseValue("2.5"))
	assert.Equal(t, "0.5s", parseValue("0.5s"))
	assert.Equal(t, "http://localhost:8000", parseValue("http://localhost:8000"))
}

func idArg(id int64) string { return strconv.FormatInt(id, 10) }
