package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/blockvault/internal/services"
	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/response"
)

// ProviderHandler exposes the marketplace provider directory.
type ProviderHandler struct {
	providers *services.ProviderService
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(providers *services.ProviderService) (*ProviderHandler, error) {
	if providers == nil {
		return nil, errors.New("provider handler: provider service is required")
	}
	return &ProviderHandler{providers: providers}, nil
}

type createProviderRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
}

// Create registers a new marketplace provider.
func (h *ProviderHandler) Create(c *gin.Context) {
	var req createProviderRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	provider, err := h.providers.Create(c.Request.Context(), services.CreateProviderInput{
		Name:        req.Name,
		Email:       req.Email,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, services.ErrProviderExists) {
			response.Error(c, appErrors.ErrConflict)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, provider)
}

// List returns every registered provider, newest first.
func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.providers.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, providers)
}

// Get returns one provider by email.
func (h *ProviderHandler) Get(c *gin.Context) {
	provider, err := h.providers.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, services.ErrProviderNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, provider)
}
