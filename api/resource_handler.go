package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/services"
)

type ResourceHandler struct {
	resourceService *services.ResourceService
}

func CreateResourceHandler(resourceService *services.ResourceService) *ResourceHandler {
	return &ResourceHandler{
		resourceService: resourceService,
	}
}

func (h *ResourceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var resource models.Resource
	if err := json.NewDecoder(r.Body).Decode(&resource); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	created, err := h.resourceService.CreateResource(r.Context(), &resource)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", created.ETag())
	writeJSON(w, http.StatusCreated, created)
}

func (h *ResourceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resource, err := h.resourceService.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", resource.ETag())
	writeJSON(w, http.StatusOK, resource)
}

func (h *ResourceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.UpdateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	expectedVersion, ok := parseIfMatch(r.Header.Get("If-Match"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid If-Match header"})
		return
	}
	req.ExpectedVersion = expectedVersion

	resource, err := h.resourceService.UpdateResource(r.Context(), id, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", resource.ETag())
	writeJSON(w, http.StatusOK, resource)
}
