package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/dto"
	"github.com/marinapark/booking-backend/internal/middleware"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc        func(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error)
	ListUserBookingsFunc     func(ctx context.Context, ownerID string, page, pageSize int) (*dto.ListBookingsResponse, error)
	RoomUnavailableDatesFunc func(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error)
	SyncExternalRemovalFunc  func(ctx context.Context, externalID string) (*dto.ExternalRemovalResponse, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, req, meta)
	}
	return &dto.CreateBookingResponse{BookingID: "98765", SyncStatus: "synced"}, nil
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, ownerID string, page, pageSize int) (*dto.ListBookingsResponse, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, ownerID, page, pageSize)
	}
	return &dto.ListBookingsResponse{Bookings: []dto.BookingSummary{}, Page: page, PageSize: pageSize}, nil
}

func (m *MockBookingService) RoomUnavailableDates(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error) {
	if m.RoomUnavailableDatesFunc != nil {
		return m.RoomUnavailableDatesFunc(ctx, roomID)
	}
	return &dto.UnavailableDatesResponse{RoomID: roomID, UnavailableDates: []string{}}, nil
}

func (m *MockBookingService) SyncExternalRemoval(ctx context.Context, externalID string) (*dto.ExternalRemovalResponse, error) {
	if m.SyncExternalRemovalFunc != nil {
		return m.SyncExternalRemovalFunc(ctx, externalID)
	}
	return &dto.ExternalRemovalResponse{ExternalID: externalID, Removed: true}, nil
}

func setupRouter(svc *MockBookingService, ownerID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBookingHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if ownerID != "" {
			c.Set(middleware.OwnerIDKey, ownerID)
		}
		c.Next()
	})
	router.POST("/api/v1/bookings", h.CreateBooking)
	router.GET("/api/v1/bookings", h.ListBookings)
	router.GET("/api/v1/rooms/:roomID/unavailable-dates", h.GetUnavailableDates)
	router.POST("/api/v1/internal/bookings/:externalID/removed", h.SyncExternalRemoval)
	return router
}

func createBookingBody() []byte {
	body, _ := json.Marshal(map[string]any{
		"kind":       "room",
		"room_id":    "room-001",
		"unit_id":    "unit-001",
		"check_in":   "2026-07-10",
		"check_out":  "2026-07-13",
		"adults":     2,
		"first_name": "Ana",
		"last_name":  "Petrescu",
		"email":      "ana@example.com",
		"phone":      "+40 700 000 000",
	})
	return body
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	tests := []struct {
		name       string
		body       []byte
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       createBookingBody(),
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed body",
			body:       []byte(`{"kind":`),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.CodeInvalidArgument,
		},
		{
			name:       "missing required fields",
			body:       []byte(`{"kind":"room"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.CodeInvalidArgument,
		},
		{
			name:       "validation error",
			body:       createBookingBody(),
			serviceErr: domain.ErrInvalidDateRange,
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.CodeInvalidArgument,
		},
		{
			name:       "captcha required",
			body:       createBookingBody(),
			serviceErr: domain.ErrCaptchaRequired,
			wantStatus: http.StatusUnauthorized,
			wantCode:   dto.CodeUnauthenticated,
		},
		{
			name:       "unit not found",
			body:       createBookingBody(),
			serviceErr: domain.ErrUnitNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   dto.CodeNotFound,
		},
		{
			name:       "date conflict",
			body:       createBookingBody(),
			serviceErr: domain.ErrDateConflict,
			wantStatus: http.StatusConflict,
			wantCode:   dto.CodeFailedPrecondition,
		},
		{
			name:       "provider rejected",
			body:       createBookingBody(),
			serviceErr: domain.ErrProviderRejected,
			wantStatus: http.StatusConflict,
			wantCode:   dto.CodeFailedPrecondition,
		},
		{
			name:       "rate limited",
			body:       createBookingBody(),
			serviceErr: domain.ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   dto.CodeResourceExhausted,
		},
		{
			name:       "provider timeout",
			body:       createBookingBody(),
			serviceErr: domain.ErrProviderTimeout,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   dto.CodeDeadlineExceeded,
		},
		{
			name:       "provider unreachable",
			body:       createBookingBody(),
			serviceErr: domain.ErrProviderUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   dto.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{}
			if tt.serviceErr != nil {
				svc.CreateBookingFunc = func(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error) {
					return nil, tt.serviceErr
				}
			}
			router := setupRouter(svc, "user-001")

			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var errResp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", errResp.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestBookingHandler_CreateBooking_PassesIdentity(t *testing.T) {
	svc := &MockBookingService{}
	var gotMeta *dto.RequestMeta
	svc.CreateBookingFunc = func(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error) {
		gotMeta = meta
		return &dto.CreateBookingResponse{BookingID: "98765"}, nil
	}
	router := setupRouter(svc, "user-001")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(createBookingBody()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DeviceIDHeader, "device-abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if gotMeta == nil {
		t.Fatal("service was never called")
	}
	if gotMeta.OwnerID != "user-001" {
		t.Errorf("OwnerID = %q, want user-001", gotMeta.OwnerID)
	}
	if gotMeta.DeviceID != "device-abc" {
		t.Errorf("DeviceID = %q, want device-abc", gotMeta.DeviceID)
	}
}

func TestBookingHandler_ListBookings(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		router := setupRouter(&MockBookingService{}, "")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("passes paging query", func(t *testing.T) {
		svc := &MockBookingService{}
		var gotPage, gotSize int
		svc.ListUserBookingsFunc = func(ctx context.Context, ownerID string, page, pageSize int) (*dto.ListBookingsResponse, error) {
			gotPage, gotSize = page, pageSize
			return &dto.ListBookingsResponse{Page: page, PageSize: pageSize}, nil
		}
		router := setupRouter(svc, "user-001")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings?page=2&page_size=5", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if gotPage != 2 || gotSize != 5 {
			t.Errorf("page/size = %d/%d, want 2/5", gotPage, gotSize)
		}
	})
}

func TestBookingHandler_GetUnavailableDates(t *testing.T) {
	svc := &MockBookingService{}
	svc.RoomUnavailableDatesFunc = func(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error) {
		if roomID != "room-001" {
			t.Errorf("roomID = %q, want room-001", roomID)
		}
		return &dto.UnavailableDatesResponse{RoomID: roomID, UnavailableDates: []string{"2026-07-11"}}, nil
	}
	router := setupRouter(svc, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/room-001/unavailable-dates", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp dto.UnavailableDatesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.UnavailableDates) != 1 || resp.UnavailableDates[0] != "2026-07-11" {
		t.Errorf("unavailable = %v, want [2026-07-11]", resp.UnavailableDates)
	}

	t.Run("room not found", func(t *testing.T) {
		svc.RoomUnavailableDatesFunc = func(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error) {
			return nil, domain.ErrRoomNotFound
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/room-999/unavailable-dates", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestBookingHandler_SyncExternalRemoval(t *testing.T) {
	svc := &MockBookingService{}
	svc.SyncExternalRemovalFunc = func(ctx context.Context, externalID string) (*dto.ExternalRemovalResponse, error) {
		return &dto.ExternalRemovalResponse{ExternalID: externalID, Removed: true}, nil
	}
	router := setupRouter(svc, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/bookings/98765/removed", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp dto.ExternalRemovalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ExternalID != "98765" || !resp.Removed {
		t.Errorf("response = %+v, want removed 98765", resp)
	}
}
