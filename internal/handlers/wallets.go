package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/blockvault/internal/services"
	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/response"
)

// WalletHandler exposes the caller's wallet balances.
type WalletHandler struct {
	wallets *services.WalletService
}

// NewWalletHandler constructs a WalletHandler.
func NewWalletHandler(wallets *services.WalletService) (*WalletHandler, error) {
	if wallets == nil {
		return nil, errors.New("wallet handler: wallet service is required")
	}
	return &WalletHandler{wallets: wallets}, nil
}

// List returns every wallet belonging to the caller.
func (h *WalletHandler) List(c *gin.Context) {
	wallets, err := h.wallets.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, wallets)
}

// Get returns one wallet identified by its coin symbol.
func (h *WalletHandler) Get(c *gin.Context) {
	wallet, err := h.wallets.GetBySymbol(c.Request.Context(), currentUserID(c), c.Param("symbol"))
	if err != nil {
		if errors.Is(err, services.ErrWalletNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, wallet)
}
