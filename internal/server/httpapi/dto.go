package httpapi

import (
	"encoding/json"
	"time"

	"github.com/smorozov/vaultcore/internal/server/models"
)

// optString is a tri-state JSON field: absent, null, or a string. Set
// reports whether the field appeared in the body at all.
type optString struct {
	Set   bool
	Value *string
}

func (o *optString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// optTime is a tri-state JSON field holding an RFC 3339 timestamp.
type optTime struct {
	Set   bool
	Value *time.Time
}

func (o *optTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	KDFSalt   string    `json:"kdf_salt"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, KDFSalt: u.KDFSalt, CreatedAt: u.CreatedAt}
}

type separatorResponse struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Color     *string   `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toSeparatorResponse(s *models.Separator) separatorResponse {
	return separatorResponse{
		ID:        s.ID,
		ParentID:  s.ParentID,
		Name:      s.Name,
		Kind:      string(s.Kind),
		Color:     s.Color,
		CreatedAt: s.CreatedAt,
	}
}

func toSeparatorResponses(seps []*models.Separator) []separatorResponse {
	out := make([]separatorResponse, 0, len(seps))
	for _, s := range seps {
		out = append(out, toSeparatorResponse(s))
	}
	return out
}

type credentialResponse struct {
	SecretEnc string `json:"secret_enc"`
	HostURL   string `json:"host_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

type fileResponse struct {
	FileName  string `json:"file_name"`
	Extension string `json:"extension,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

type itemResponse struct {
	ID          string              `json:"id"`
	AppName     string              `json:"app_name"`
	Description string              `json:"description,omitempty"`
	Kind        string              `json:"kind"`
	CreatedAt   time.Time           `json:"created_at"`
	Credential  *credentialResponse `json:"credential,omitempty"`
	File        *fileResponse       `json:"file,omitempty"`
	FolderID    *string             `json:"folder_id,omitempty"`
	TagIDs      []string            `json:"tag_ids,omitempty"`
	DownloadURL string              `json:"download_url,omitempty"`
	UploadURL   string              `json:"upload_url,omitempty"`
}

func toItemResponse(it *models.DataItem) itemResponse {
	resp := itemResponse{
		ID:          it.ID,
		AppName:     it.AppName,
		Description: it.Description,
		Kind:        string(it.Kind),
		CreatedAt:   it.CreatedAt,
		FolderID:    it.FolderID(),
		TagIDs:      it.TagIDs(),
	}
	if it.Credential != nil {
		resp.Credential = &credentialResponse{
			SecretEnc: it.Credential.SecretEnc,
			HostURL:   it.Credential.HostURL,
			Email:     it.Credential.Email,
		}
	}
	if it.File != nil {
		resp.File = &fileResponse{
			FileName:  it.File.FileName,
			Extension: it.File.Extension,
			Payload:   it.File.Payload,
		}
	}
	return resp
}

func toItemResponses(items []*models.DataItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	return out
}

type sharedItemResponse struct {
	ID      string  `json:"id"`
	Payload []byte  `json:"payload"`
	Meta    *string `json:"meta,omitempty"`
}

type shareResponse struct {
	ID        string               `json:"id"`
	URL       string               `json:"url,omitempty"`
	NTotal    int64                `json:"n_total"`
	NUsed     int64                `json:"n_used"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Items     []sharedItemResponse `json:"items,omitempty"`
}

func (s *Server) toShareResponse(sh *models.Share, withURL, withItems bool) shareResponse {
	resp := shareResponse{
		ID:        sh.ID,
		NTotal:    sh.NTotal,
		NUsed:     sh.NUsed,
		ExpiresAt: sh.ExpiresAt,
		CreatedAt: sh.CreatedAt,
	}
	if withURL {
		resp.URL = s.shareBaseURL + sh.Token
	}
	if withItems {
		for _, it := range sh.Items {
			resp.Items = append(resp.Items, sharedItemResponse{ID: it.ID, Payload: it.Payload, Meta: it.Meta})
		}
	}
	return resp
}

type eventResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type auditLogResponse struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	ItemID  *string   `json:"item_id,omitempty"`
	AppName *string   `json:"app_name,omitempty"`
	Device  *string   `json:"device,omitempty"`
	IP      *string   `json:"ip,omitempty"`
	Region  *string   `json:"region,omitempty"`
	At      time.Time `json:"at"`
}
