package session

import (
	"encoding/json"
	"strconv"
	"strings"
)

// User is the canonical shape of the signed-in account. Backend responses
// vary in field naming and role encoding; UnmarshalJSON normalizes every
// observed variant so nothing downstream has to sniff shapes.
type User struct {
	ID       string
	Email    string
	Username string
	Name     string
	Roles    []string
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   json.RawMessage `json:"userId"`
		ID       json.RawMessage `json:"id"`
		Email    string          `json:"email"`
		Username string          `json:"username"`
		Name     string          `json:"name"`
		Roles    json.RawMessage `json:"roles"`
		Role     json.RawMessage `json:"role"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.ID = firstNonEmpty(decodeScalar(raw.UserID), decodeScalar(raw.ID))
	u.Email = strings.TrimSpace(raw.Email)
	u.Username = strings.TrimSpace(raw.Username)
	u.Name = strings.TrimSpace(raw.Name)

	roles := raw.Roles
	if len(roles) == 0 {
		roles = raw.Role
	}
	u.Roles = decodeRoles(roles)
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	type wire struct {
		UserID   string   `json:"userId,omitempty"`
		Email    string   `json:"email,omitempty"`
		Username string   `json:"username,omitempty"`
		Name     string   `json:"name,omitempty"`
		Roles    []string `json:"roles,omitempty"`
	}
	return json.Marshal(wire{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		Name:     u.Name,
		Roles:    u.Roles,
	})
}

// IsAdmin reports whether any role denotes an administrator.
func (u User) IsAdmin() bool {
	for _, role := range u.Roles {
		if strings.Contains(strings.ToLower(role), "admin") {
			return true
		}
	}
	return false
}

// UserKey derives the stable identity string that partitions submissions and
// notifications between accounts sharing one profile. A nil user is a guest.
func UserKey(user *User) string {
	if user == nil {
		return "guest"
	}
	id := firstNonEmpty(user.ID, user.Email, user.Username, user.Name)
	if id == "" {
		id = "user"
	}
	if user.IsAdmin() {
		return "admin:" + id
	}
	return "user:" + id
}

func decodeScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return strconv.FormatInt(asInt, 10)
	}
	return ""
}

func decodeRoles(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		// A single role is accepted outside an array.
		elements = []json.RawMessage{raw}
	}

	roles := make([]string, 0, len(elements))
	for _, element := range elements {
		if name := decodeRoleName(element); name != "" {
			roles = append(roles, name)
		}
	}
	if len(roles) == 0 {
		return nil
	}
	return roles
}

func decodeRoleName(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject struct {
		Name      string `json:"name"`
		Authority string `json:"authority"`
		RoleName  string `json:"roleName"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return firstNonEmpty(asObject.Name, asObject.Authority, asObject.RoleName)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
