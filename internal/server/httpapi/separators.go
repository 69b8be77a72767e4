package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smorozov/vaultcore/internal/server/services"
)

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	folder, err := s.separators.CreateFolder(r.Context(), id, req.Name, req.ParentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeparatorResponse(folder))
}

func (s *Server) handleListRootFolders(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	folders, err := s.separators.RootFolders(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeparatorResponses(folders))
}

func (s *Server) handleListChildFolders(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	folders, err := s.separators.ChildFolders(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeparatorResponses(folders))
}

type updateFolderRequest struct {
	Name     *string   `json:"name"`
	ParentID optString `json:"parent_id"`
}

func (s *Server) handleUpdateFolder(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req updateFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	folder, err := s.separators.UpdateFolder(r.Context(), id, chi.URLParam(r, "id"), services.FolderUpdate{
		Name:      req.Name,
		SetParent: req.ParentID.Set,
		ParentID:  req.ParentID.Value,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeparatorResponse(folder))
}

// handleDeleteFolder removes the folder, its descendant folders, and every
// item inside, via the cascade orchestrator.
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	if err := s.cascade.DeleteFolderRecursive(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := s.separators.CreateTag(r.Context(), id, req.Name, req.Color)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeparatorResponse(tag))
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	tags, err := s.separators.Tags(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeparatorResponses(tags))
}

type updateTagRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	var req updateTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := s.separators.UpdateTag(r.Context(), id, chi.URLParam(r, "id"), services.TagUpdate{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeparatorResponse(tag))
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r.Context())

	if err := s.separators.DeleteTag(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
