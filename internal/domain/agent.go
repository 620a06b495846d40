package domain

import "encoding/json"

// Agent is a configured AI persona owned by a user.
type Agent struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	Tools        []string `json:"tools"`
	OwnerID      int64    `json:"owner_id,omitempty"`
}

// AgentCreate is the body of POST /agents/.
type AgentCreate struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	Tools        []string `json:"tools"`
}

// Validate rejects empty required fields before any request is sent.
func (a AgentCreate) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if a.SystemPrompt == "" {
		return &ValidationError{Field: "system_prompt", Message: "system prompt is required"}
	}
	return nil
}

// AgentUpdate is the body of PUT /agents/{id}. Nil fields are left unchanged;
// a non-nil empty Tools clears the tool set.
type AgentUpdate struct {
	Name         *string
	SystemPrompt *string
	Tools        []string
}

func (a AgentUpdate) MarshalJSON() ([]byte, error) {
	w := struct {
		Name         *string   `json:"name,omitempty"`
		SystemPrompt *string   `json:"system_prompt,omitempty"`
		Tools        *[]string `json:"tools,omitempty"`
	}{Name: a.Name, SystemPrompt: a.SystemPrompt}
	if a.Tools != nil {
		w.Tools = &a.Tools
	}
	return json.Marshal(w)
}

func (a *AgentUpdate) UnmarshalJSON(data []byte) error {
	var w struct {
		Name         *string  `json:"name"`
		SystemPrompt *string  `json:"system_prompt"`
		Tools        []string `json:"tools"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = AgentUpdate(w)
	return nil
}

// Empty reports whether the update would change nothing.
func (a AgentUpdate) Empty() bool {
	return a.Name == nil && a.SystemPrompt == nil && a.Tools == nil
}

// Tool is a backend capability an agent may invoke.
type Tool struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	LangchainKey string `json:"langchain_key"`
}
