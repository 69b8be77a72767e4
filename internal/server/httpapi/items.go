package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smorozov/vaultcore/internal/server/services"
)

type createCredentialRequest struct {
	AppName     string   `json:"app_name"`
	Description string   `json:"description"`
	SecretEnc   string   `json:"secret_enc"`
	HostURL     string   `json:"host_url"`
	Email       string   `json:"email"`
	FolderID    *string  `json:"folder_id"`
	TagIDs      []string `json:"tag_ids"`
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req createCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.items.CreateCredential(r.Context(), id, services.CreateCredentialInput{
		AppName:     req.AppName,
		Description: req.Description,
		SecretEnc:   req.SecretEnc,
		HostURL:     req.HostURL,
		Email:       req.Email,
		FolderID:    req.FolderID,
		TagIDs:      req.TagIDs,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

type createFileRequest struct {
	AppName     string   `json:"app_name"`
	Description string   `json:"description"`
	FileName    string   `json:"file_name"`
	Extension   string   `json:"extension"`
	Payload     []byte   `json:"payload"`
	FolderID    *string  `json:"folder_id"`
	TagIDs      []string `json:"tag_ids"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req createFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, uploadURL, err := s.items.CreateFile(r.Context(), id, services.CreateFileInput{
		AppName:     req.AppName,
		Description: req.Description,
		FileName:    req.FileName,
		Extension:   req.Extension,
		Payload:     req.Payload,
		FolderID:    req.FolderID,
		TagIDs:      req.TagIDs,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := toItemResponse(item)
	resp.UploadURL = uploadURL
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	separatorIDs := q["separator_id"]

	items, err := s.items.List(r.Context(), id, page, pageSize, separatorIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponses(items))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	item, downloadURL, err := s.items.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := toItemResponse(item)
	resp.DownloadURL = downloadURL
	writeJSON(w, http.StatusOK, resp)
}

type updateCredentialRequest struct {
	AppName     *string   `json:"app_name"`
	Description *string   `json:"description"`
	SecretEnc   *string   `json:"secret_enc"`
	HostURL     *string   `json:"host_url"`
	Email       *string   `json:"email"`
	FolderID    optString `json:"folder_id"`
	TagIDs      *[]string `json:"tag_ids"`
}

func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req updateCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := services.CredentialUpdate{
		AppName:     req.AppName,
		Description: req.Description,
		SecretEnc:   req.SecretEnc,
		HostURL:     req.HostURL,
		Email:       req.Email,
		SetFolder:   req.FolderID.Set,
		FolderID:    req.FolderID.Value,
	}
	if req.TagIDs != nil {
		upd.SetTags = true
		upd.TagIDs = *req.TagIDs
	}

	item, err := s.items.UpdateCredential(r.Context(), id, chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type updateFileRequest struct {
	AppName     *string   `json:"app_name"`
	Description *string   `json:"description"`
	FileName    *string   `json:"file_name"`
	Extension   *string   `json:"extension"`
	Payload     *[]byte   `json:"payload"`
	FolderID    optString `json:"folder_id"`
	TagIDs      *[]string `json:"tag_ids"`
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req updateFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := services.FileUpdate{
		AppName:     req.AppName,
		Description: req.Description,
		FileName:    req.FileName,
		Extension:   req.Extension,
		SetFolder:   req.FolderID.Set,
		FolderID:    req.FolderID.Value,
	}
	if req.Payload != nil {
		upd.SetPayload = true
		upd.Payload = *req.Payload
	}
	if req.TagIDs != nil {
		upd.SetTags = true
		upd.TagIDs = *req.TagIDs
	}

	item, uploadURL, err := s.items.UpdateFile(r.Context(), id, chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := toItemResponse(item)
	resp.UploadURL = uploadURL
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	if err := s.cascade.DeleteItem(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
