// Package backendtest is an in-process stand-in for the agent platform:
// the REST API and the chat socket, backed by maps. Tests only.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/stream"
)

// SocketPath is where the chat socket is served.
const SocketPath = "/ws/text"

// Script produces the frames the server sends back for one chat_message.
type Script func(agent domain.Agent, message string) []stream.Frame

// Server is the fake backend. Exported maps may be edited between requests
// while holding Lock/Unlock.
type Server struct {
	*httptest.Server

	sync.Mutex
	Users        map[string]domain.User // by token
	Passwords    map[string]string      // by email
	Agents       map[int64]domain.Agent
	History      map[int64][]domain.ConversationMessage
	Plans        domain.Plans
	Integrations map[int64]domain.Integration
	Tools        []domain.Tool
	Analytics    domain.Analytics
	AuditLog     string
	Script       Script

	received []stream.Frame
	nextID   int64
	upgrader websocket.Upgrader
}

// New starts a server that is closed when t ends.
func New(t testing.TB) *Server {
	s := &Server{
		Users:        map[string]domain.User{},
		Passwords:    map[string]string{},
		Agents:       map[int64]domain.Agent{},
		History:      map[int64][]domain.ConversationMessage{},
		Integrations: map[int64]domain.Integration{},
		Plans: domain.Plans{
			"free": {Name: "Free", Limits: domain.PlanLimits{MaxAgents: 1, MaxTokensPerMonth: 10000}},
			"pro":  {Name: "Pro", Limits: domain.PlanLimits{MaxAgents: 10, MaxTokensPerMonth: 1000000}},
		},
		Tools: []domain.Tool{
			{ID: 1, Name: "Web Search", Description: "Search the web", LangchainKey: "web_search"},
			{ID: 2, Name: "Calculator", Description: "Do math", LangchainKey: "calculator"},
		},
		AuditLog: "id,user_id,action,timestamp\n1,1,login,2024-05-01T10:00:00\n",
		Script:   EchoScript,
		nextID:   100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// EchoScript streams "You said: <message>" in two fragments and ends with metrics.
func EchoScript(_ domain.Agent, message string) []stream.Frame {
	rt := 0.5
	reply := "You said: " + message
	half := len(reply) / 2
	return []stream.Frame{
		mustFrame(stream.EventToken, stream.Token{Token: reply[:half]}),
		mustFrame(stream.EventToken, stream.Token{Token: reply[half:]}),
		mustFrame(stream.EventStreamEnd, stream.StreamEnd{Metrics: domain.Metrics{
			ResponseTimeSeconds: &rt,
			TokenUsage:          &domain.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		}}),
	}
}

func mustFrame(event string, data any) stream.Frame {
	f, err := stream.NewFrame(event, data)
	if err != nil {
		panic(err)
	}
	return f
}

// Frame builds a frame for use in custom scripts.
func Frame(event string, data any) stream.Frame { return mustFrame(event, data) }

// AddUser registers an account and returns its token.
func (s *Server) AddUser(email, password string, role domain.UserRole) (string, domain.User) {
	s.Lock()
	defer s.Unlock()
	s.nextID++
	u := domain.User{ID: s.nextID, Email: email, Role: role, Plan: "free"}
	tok := "token-" + email
	s.Users[tok] = u
	s.Passwords[email] = password
	return tok, u
}

// AddAgent stores a and returns it with an ID assigned.
func (s *Server) AddAgent(a domain.Agent) domain.Agent {
	s.Lock()
	defer s.Unlock()
	s.nextID++
	a.ID = s.nextID
	if a.Tools == nil {
		a.Tools = []string{}
	}
	s.Agents[a.ID] = a
	return a
}

// Received returns every frame clients sent on the socket, in order.
func (s *Server) Received() []stream.Frame {
	s.Lock()
	defer s.Unlock()
	return slices.Clone(s.received)
}

// SocketURL is the ws:// address of the chat socket.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + SocketPath
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	p := "/api/v1"

	mux.HandleFunc("POST "+p+"/login/access-token", s.handleLogin)
	mux.HandleFunc("POST "+p+"/users/", s.handleRegister(domain.UserRoleUser))
	mux.HandleFunc("POST "+p+"/users/admin", s.handleRegister(domain.UserRoleAdmin))
	mux.HandleFunc("POST "+p+"/users/viewer", s.handleRegister(domain.UserRoleViewer))
	mux.HandleFunc("GET "+p+"/plans/", func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()
		writeJSON(w, http.StatusOK, s.Plans)
	})
	mux.HandleFunc("GET "+p+"/tools/", func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()
		writeJSON(w, http.StatusOK, s.Tools)
	})

	mux.HandleFunc("GET "+p+"/users/me", s.authed(s.handleMe))
	mux.HandleFunc("PUT "+p+"/users/me", s.authed(s.handleUpdateMe))
	mux.HandleFunc("GET "+p+"/users/", s.admin(s.handleListUsers))
	mux.HandleFunc("DELETE "+p+"/users/{id}", s.admin(s.handleDeleteUser))

	mux.HandleFunc("GET "+p+"/agents/", s.authed(s.handleListAgents))
	mux.HandleFunc("POST "+p+"/agents/", s.authed(s.handleCreateAgent))
	mux.HandleFunc("GET "+p+"/agents/{id}", s.authed(s.handleGetAgent))
	mux.HandleFunc("PUT "+p+"/agents/{id}", s.authed(s.handleUpdateAgent))
	mux.HandleFunc("DELETE "+p+"/agents/{id}", s.authed(s.handleDeleteAgent))
	mux.HandleFunc("GET "+p+"/agents/{id}/history", s.authed(s.handleHistory))

	mux.HandleFunc("POST "+p+"/subscriptions/create-checkout-session", s.authed(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		writeJSON(w, http.StatusOK, domain.RedirectSession{URL: "https://billing.example/checkout/" + strconv.FormatInt(u.ID, 10)})
	}))
	mux.HandleFunc("POST "+p+"/subscriptions/create-portal-session", s.authed(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		writeJSON(w, http.StatusOK, domain.RedirectSession{URL: "https://billing.example/portal/" + strconv.FormatInt(u.ID, 10)})
	}))

	mux.HandleFunc("GET "+p+"/integrations/", s.authed(s.handleListIntegrations))
	mux.HandleFunc("POST "+p+"/integrations/", s.authed(s.handleAddIntegration))
	mux.HandleFunc("DELETE "+p+"/integrations/{id}", s.authed(s.handleDeleteIntegration))

	mux.HandleFunc("GET "+p+"/admin/analytics", s.admin(func(w http.ResponseWriter, r *http.Request, _ domain.User) {
		s.Lock()
		defer s.Unlock()
		writeJSON(w, http.StatusOK, s.Analytics)
	}))
	mux.HandleFunc("GET "+p+"/admin/reports/audit-log", s.admin(func(w http.ResponseWriter, r *http.Request, _ domain.User) {
		s.Lock()
		defer s.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit_log.csv")
		io.WriteString(w, s.AuditLog)
	}))

	mux.HandleFunc("GET "+SocketPath, s.handleSocket)
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u domain.User)

func (s *Server) userFor(r *http.Request) (domain.User, bool) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return domain.User{}, false
	}
	s.Lock()
	defer s.Unlock()
	u, ok := s.Users[tok]
	return u, ok
}

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.userFor(r)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h(w, r, u)
	}
}

func (s *Server) admin(h authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		if u.Role != domain.UserRoleAdmin {
			writeDetail(w, http.StatusForbidden, "The user doesn't have enough privileges")
			return
		}
		h(w, r, u)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	s.Lock()
	defer s.Unlock()
	if pw, ok := s.Passwords[email]; !ok || pw != password {
		writeDetail(w, http.StatusBadRequest, "Incorrect email or password")
		return
	}
	writeJSON(w, http.StatusOK, domain.AccessToken{AccessToken: "token-" + email, TokenType: "bearer"})
}

func (s *Server) handleRegister(role domain.UserRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg domain.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.Lock()
		_, exists := s.Passwords[reg.Email]
		s.Unlock()
		if exists {
			writeDetail(w, http.StatusBadRequest, "The user with this email already exists in the system.")
			return
		}
		_, u := s.AddUser(reg.Email, reg.Password, role)
		s.Lock()
		u.FullName = reg.FullName
		s.Users["token-"+reg.Email] = u
		s.Unlock()
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, u domain.User) {
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, u domain.User) {
	var in domain.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	s.Lock()
	for tok, existing := range s.Users {
		if existing.ID == u.ID {
			s.Users[tok] = u
		}
	}
	s.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	s.Lock()
	defer s.Unlock()
	users := make([]domain.User, 0, len(s.Users))
	for _, u := range s.Users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return int(a.ID - b.ID) })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return
	}
	s.Lock()
	defer s.Unlock()
	for tok, u := range s.Users {
		if u.ID == id {
			delete(s.Users, tok)
			delete(s.Passwords, u.Email)
			writeJSON(w, http.StatusOK, u)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "User not found")
}

func (s *Server) ownedAgent(w http.ResponseWriter, r *http.Request, u domain.User) (domain.Agent, bool) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid id")
		return domain.Agent{}, false
	}
	s.Lock()
	a, ok := s.Agents[id]
	s.Unlock()
	if !ok || (a.OwnerID != 0 && a.OwnerID != u.ID) {
		writeDetail(w, http.StatusNotFound, "Agent not found")
		return domain.Agent{}, false
	}
	return a, true
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request, u domain.User) {
	s.Lock()
	defer s.Unlock()
	out := []domain.Agent{}
	for _, a := range s.Agents {
		if a.OwnerID == 0 || a.OwnerID == u.ID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Agent) int { return int(a.ID - b.ID) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request, u domain.User) {
	var in domain.AgentCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	a := s.AddAgent(domain.Agent{Name: in.Name, SystemPrompt: in.SystemPrompt, Tools: in.Tools, OwnerID: u.ID})
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request, u domain.User) {
	if a, ok := s.ownedAgent(w, r, u); ok {
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request, u domain.User) {
	a, ok := s.ownedAgent(w, r, u)
	if !ok {
		return
	}
	var in domain.AgentUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.SystemPrompt != nil {
		a.SystemPrompt = *in.SystemPrompt
	}
	if in.Tools != nil {
		a.Tools = in.Tools
	}
	s.Lock()
	s.Agents[a.ID] = a
	s.Unlock()
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request, u domain.User) {
	a, ok := s.ownedAgent(w, r, u)
	if !ok {
		return
	}
	s.Lock()
	delete(s.Agents, a.ID)
	delete(s.History, a.ID)
	s.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Agent deleted successfully"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, u domain.User) {
	a, ok := s.ownedAgent(w, r, u)
	if !ok {
		return
	}
	s.Lock()
	defer s.Unlock()
	hist := s.History[a.ID]
	if hist == nil {
		hist = []domain.ConversationMessage{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request, _ domain.User) {
	s.Lock()
	defer s.Unlock()
	out := make([]domain.Integration, 0, len(s.Integrations))
	for _, in := range s.Integrations {
		out = append(out, in)
	}
	slices.SortFunc(out, func(a, b domain.Integration) int { return int(a.ID - b.ID) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddIntegration(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var in domain.IntegrationCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.Lock()
	defer s.Unlock()
	s.nextID++
	integ := domain.Integration{ID: s.nextID, ServiceName: in.ServiceName}
	s.Integrations[integ.ID] = integ
	writeJSON(w, http.StatusOK, integ)
}

func (s *Server) handleDeleteIntegration(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(r)
	s.Lock()
	defer s.Unlock()
	if _, exists := s.Integrations[id]; !ok || !exists {
		writeDetail(w, http.StatusNotFound, "Integration not found")
		return
	}
	delete(s.Integrations, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Integration deleted"})
}

// handleSocket runs one chat connection: start_chat binds the agent,
// each chat_message is answered by Script.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.userFor(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var agent *domain.Agent
	for {
		var f stream.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		s.Lock()
		s.received = append(s.received, f)
		script := s.Script
		s.Unlock()

		switch f.Event {
		case stream.EventStartChat:
			var p stream.StartChat
			if err := f.Decode(&p); err != nil {
				conn.WriteJSON(mustFrame(stream.EventError, stream.ErrorPayload{Message: err.Error()}))
				continue
			}
			s.Lock()
			a, ok := s.Agents[p.AgentID]
			s.Unlock()
			if !ok {
				conn.WriteJSON(mustFrame(stream.EventError, stream.ErrorPayload{Message: "Agent not found"}))
				continue
			}
			agent = &a
			conn.WriteJSON(mustFrame(stream.EventChatStarted, map[string]any{"agent_id": a.ID}))

		case stream.EventChatMessage:
			if agent == nil {
				conn.WriteJSON(mustFrame(stream.EventError, stream.ErrorPayload{Message: "Chat not started"}))
				continue
			}
			var p stream.ChatMessage
			f.Decode(&p)
			for _, out := range script(*agent, p.Message) {
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			}

		default:
			conn.WriteJSON(mustFrame(stream.EventError, stream.ErrorPayload{Message: fmt.Sprintf("unknown event %q", f.Event)}))
		}
	}
}
