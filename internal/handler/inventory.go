package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"lootcase-api/internal/middleware"
	"lootcase-api/internal/service"
	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/response"
)

// Inventory actions accepted by POST /api/v1/inventory/actions.
const (
	ActionSellItem        = "sellItem"
	ActionSellSelected    = "sellSelected"
	ActionSellByRarity    = "sellByRarity"
	ActionUpgradeCapacity = "upgradeCapacity"
)

// InventoryActions is the economy surface the inventory handler drives.
type InventoryActions interface {
	SellItem(ctx context.Context, c service.Caller, itemID string) (*service.SellItemResult, error)
	SellSelected(ctx context.Context, c service.Caller, itemIDs []string) (*service.BatchSaleResult, error)
	SellByRarity(ctx context.Context, c service.Caller, rarities []string) (*service.BatchSaleResult, error)
	UpgradeCapacity(ctx context.Context, c service.Caller) (*service.UpgradeCapacityResult, error)
	ListInventory(ctx context.Context, c service.Caller, page, limit int) (*service.InventoryPage, error)
}

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	actions      InventoryActions
	maxBodyBytes int64
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(actions InventoryActions, maxBodyBytes int64) *InventoryHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &InventoryHandler{
		actions:      actions,
		maxBodyBytes: maxBodyBytes,
	}
}

// ActionRequest is the body of every inventory request.
type ActionRequest struct {
	Action    string   `json:"action"`
	UserID    string   `json:"userId"`
	AuthToken string   `json:"authToken"`
	ItemID    string   `json:"itemId,omitempty"`
	ItemIDs   []string `json:"itemIds,omitempty"`
	Rarities  []string `json:"rarities,omitempty"`
	Page      int      `json:"page,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// HandleAction handles POST /api/v1/inventory/actions
func (h *InventoryHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	c := callerFrom(r, req)

	var (
		result interface{}
		err    error
	)
	switch req.Action {
	case ActionSellItem:
		result, err = h.actions.SellItem(r.Context(), c, req.ItemID)
	case ActionSellSelected:
		result, err = h.actions.SellSelected(r.Context(), c, req.ItemIDs)
	case ActionSellByRarity:
		result, err = h.actions.SellByRarity(r.Context(), c, req.Rarities)
	case ActionUpgradeCapacity:
		result, err = h.actions.UpgradeCapacity(r.Context(), c)
	case "":
		response.Error(w, apierror.ValidationError("action is required",
			apierror.FieldError{Field: "action", Message: "is required"}))
		return
	default:
		response.Error(w, apierror.BadRequest("unknown action").WithCode("UNKNOWN_ACTION"))
		return
	}

	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, result)
}

// List handles POST /api/v1/inventory/list
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	page, err := h.actions.ListInventory(r.Context(), callerFrom(r, req), req.Page, req.Limit)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, page)
}

func (h *InventoryHandler) decode(w http.ResponseWriter, r *http.Request) (*ActionRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer r.Body.Close()

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, apierror.BadRequest("request body too large").WithCode("BODY_TOO_LARGE"))
			return nil, false
		}
		response.Error(w, apierror.BadRequest("invalid request body"))
		return nil, false
	}
	return &req, true
}

// callerFrom builds the claimed identity. A bearer header stands in for a
// missing authToken field.
func callerFrom(r *http.Request, req *ActionRequest) service.Caller {
	token := req.AuthToken
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return service.Caller{
		UserID: req.UserID,
		Token:  token,
		IP:     middleware.GetClientIP(r.Context()),
	}
}
