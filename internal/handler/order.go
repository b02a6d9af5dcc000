package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okybprasetya/marketplace/internal/order"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "X-Callback-Signature"

type AddressRequest struct {
	Recipient  string `json:"recipient" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Line       string `json:"line" validate:"required"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

type CheckoutRequest struct {
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=online cod"`
	Items         []string       `json:"items" validate:"omitempty,dive,uuid4"`
	Quick         bool           `json:"quick"`
	Address       AddressRequest `json:"address" validate:"required"`
}

type StatusUpdateRequest struct {
	OrderStatus    *string `json:"order_status"`
	PaymentStatus  *string `json:"payment_status"`
	ShippingStatus *string `json:"shipping_status"`
	Note           string  `json:"note"`
}

type CancelRequest struct {
	Note string `json:"note"`
}

type ShipmentEventRequest struct {
	Code   string  `json:"code" validate:"required"`
	Note   string  `json:"note"`
	Status *string `json:"status"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/checkout/{buyerID}", h.handleCheckout)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Get("/orders/{id}/history", h.handleGetHistory)
	router.Post("/orders/{id}/status", h.handleUpdateStatuses)
	router.Post("/orders/{id}/cancel", h.handleCancel)
	router.Post("/orders/{id}/receive", h.handleConfirmReceipt)
	router.Post("/orders/{id}/payment", h.handleReissuePayment)
	router.Post("/orders/{id}/payment/confirm", h.handleConfirmPayment)
	router.Get("/orders/{id}/shipment", h.handleGetShipment)
	router.Post("/orders/{id}/shipment/events", h.handleAddShipmentEvent)
}

// RegisterWebhook mounts the unauthenticated, signature-checked route.
func (h *OrderHandler) RegisterWebhook(router chi.Router) {
	router.Post("/orders/payment-webhook", h.handlePaymentWebhook)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	buyerID, err := uuid.FromString(chi.URLParam(r, "buyerID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid buyer id")
		return
	}

	if actor.ID != buyerID {
		respondWithError(w, http.StatusForbidden, "cannot check out another buyer's cart")
		return
	}

	var req CheckoutRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode checkout request")
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	method, err := payment.ToMethod(req.PaymentMethod)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	selection := make([]uuid.UUID, 0, len(req.Items))
	for _, raw := range req.Items {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid cart item id in selection")
			return
		}
		selection = append(selection, id)
	}

	o, p, err := h.svc.Checkout(r.Context(), order.CheckoutInput{
		BuyerID:       buyerID,
		Selection:     selection,
		PaymentMethod: method,
		Quick:         req.Quick,
		Address: order.Address{
			Recipient:  req.Address.Recipient,
			Phone:      req.Address.Phone,
			Line:       req.Address.Line,
			City:       req.Address.City,
			Province:   req.Address.Province,
			PostalCode: req.Address.PostalCode,
		},
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{"order": o, "payment": p})
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	query := r.URL.Query()
	var f order.Filter

	if raw := query.Get("buyerId"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid buyerId")
			return
		}
		f.BuyerID = &id
	}
	if raw := query.Get("sellerId"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid sellerId")
			return
		}
		f.SellerID = &id
	}
	if f.BuyerID == nil && f.SellerID == nil {
		respondWithError(w, http.StatusBadRequest, "buyerId or sellerId is required")
		return
	}

	if raw := query.Get("status"); raw != "" {
		status, err := order.ToStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = &status
	}

	f.Page, _ = strconv.Atoi(query.Get("page"))
	f.Limit, _ = strconv.Atoi(query.Get("limit"))

	orders, total, err := h.svc.ListOrders(r.Context(), actor.ID, f)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
	})
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetOrder(r.Context(), actor.ID, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	entries, err := h.svc.GetHistory(r.Context(), actor.ID, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *OrderHandler) handleUpdateStatuses(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	var upd order.StatusUpdate
	upd.Note = req.Note

	if req.OrderStatus != nil {
		status, err := order.ToStatus(*req.OrderStatus)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Order = &status
	}
	if req.PaymentStatus != nil {
		status := payment.Status(*req.PaymentStatus)
		switch status {
		case payment.StatusPending, payment.StatusPaid, payment.StatusFailed, payment.StatusCanceled:
		default:
			respondWithError(w, http.StatusBadRequest, "invalid payment status")
			return
		}
		upd.Payment = &status
	}
	if req.ShippingStatus != nil {
		status, err := shipment.ToStatus(*req.ShippingStatus)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Shipping = &status
	}

	o, err := h.svc.UpdateStatuses(r.Context(), actor.ID, orderID, upd)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
	}

	o, err := h.svc.Cancel(r.Context(), actor.ID, orderID, req.Note)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.svc.ConfirmReceipt(r.Context(), actor.ID, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleReissuePayment(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.ReissuePaymentIntent(r.Context(), actor.ID, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

// handleConfirmPayment is the internal/test confirmation path; the
// production path is the provider webhook. Only a party to the order
// may drive it.
func (h *OrderHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	if _, err := h.svc.GetOrder(r.Context(), actor.ID, orderID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	result, err := h.svc.ConfirmPayment(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		// A notification for an order or payment we do not know is a bad
		// request from the provider's side, not a missing resource.
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, payment.ErrNotFound) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func (h *OrderHandler) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	sh, err := h.svc.GetShipment(r.Context(), actor.ID, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sh)
}

func (h *OrderHandler) handleAddShipmentEvent(w http.ResponseWriter, r *http.Request) {
	actor, orderID, ok := h.actorAndOrderID(w, r)
	if !ok {
		return
	}

	var req ShipmentEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	var advance *shipment.Status
	if req.Status != nil {
		status, err := shipment.ToStatus(*req.Status)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		advance = &status
	}

	sh, err := h.svc.AddShipmentEvent(r.Context(), actor.ID, orderID, req.Code, req.Note, advance)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sh)
}

func (h *OrderHandler) actorAndOrderID(w http.ResponseWriter, r *http.Request) (Actor, uuid.UUID, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return Actor{}, uuid.Nil, false
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return Actor{}, uuid.Nil, false
	}

	return actor, orderID, true
}
