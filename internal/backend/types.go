package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Credentials are the email/password pair posted as a form to the auth endpoints.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Token is the bearer credential issued by the backend.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// OAuthStart is returned when a GitHub login begins.
type OAuthStart struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// TaskStatus is the body of GET /status/{id}.
type TaskStatus struct {
	ID     FlexString `json:"id"`
	Status string     `json:"status"`
	Result string     `json:"result"`
}

// TaskRecord is one element of GET /tasks.
type TaskRecord struct {
	ID        FlexString `json:"id"`
	Status    string     `json:"status"`
	Result    string     `json:"result"`
	CreatedAt string     `json:"created_at"`
}

type transcribeResponse struct {
	TaskID FlexString `json:"task_id"`
}

// FlexString decodes a JSON string or number into its string form. Older
// backends issued integer task ids.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
