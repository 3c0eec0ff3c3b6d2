package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/dto"
	"github.com/marinapark/booking-backend/internal/middleware"
	"github.com/marinapark/booking-backend/internal/service"
)

// BookingHandler handles booking HTTP endpoints
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request body",
			Code:    dto.CodeInvalidArgument,
			Message: err.Error(),
		})
		return
	}

	meta := &dto.RequestMeta{
		OwnerID:  middleware.OwnerID(c),
		ClientIP: c.ClientIP(),
		DeviceID: c.GetHeader(middleware.DeviceIDHeader),
	}

	resp, err := h.bookingService.CreateBooking(c.Request.Context(), &req, meta)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "authentication required",
			Code:  dto.CodeUnauthenticated,
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	resp, err := h.bookingService.ListUserBookings(c.Request.Context(), ownerID, page, pageSize)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetUnavailableDates handles GET /api/v1/rooms/:roomID/unavailable-dates
func (h *BookingHandler) GetUnavailableDates(c *gin.Context) {
	resp, err := h.bookingService.RoomUnavailableDates(c.Request.Context(), c.Param("roomID"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SyncExternalRemoval handles POST /api/v1/internal/bookings/:externalID/removed
func (h *BookingHandler) SyncExternalRemoval(c *gin.Context) {
	resp, err := h.bookingService.SyncExternalRemoval(c.Request.Context(), c.Param("externalID"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleError maps domain errors to HTTP responses
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    dto.CodeInvalidArgument,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrCaptchaRequired), errors.Is(err, domain.ErrCaptchaFailed), errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "unauthenticated",
			Code:    dto.CodeUnauthenticated,
			Message: err.Error(),
		})
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not found",
			Code:    dto.CodeNotFound,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrDateConflict), errors.Is(err, domain.ErrHoldInactive), errors.Is(err, domain.ErrProviderRejected):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "booking not possible",
			Code:    dto.CodeFailedPrecondition,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Error:   "too many attempts",
			Code:    dto.CodeResourceExhausted,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrProviderTimeout):
		c.JSON(http.StatusGatewayTimeout, dto.ErrorResponse{
			Error:   "provider timeout",
			Code:    dto.CodeDeadlineExceeded,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "provider unavailable",
			Code:    dto.CodeUnavailable,
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal error",
			Code:  dto.CodeInternal,
		})
	}
}
