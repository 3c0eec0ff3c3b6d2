package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/marinapark/booking-backend/internal/captcha"
	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/config"
	"github.com/marinapark/booking-backend/internal/domain"
	"github.com/marinapark/booking-backend/internal/dto"
	"github.com/marinapark/booking-backend/internal/logger"
	"github.com/marinapark/booking-backend/internal/provider"
	"github.com/marinapark/booking-backend/internal/ratelimit"
	"github.com/marinapark/booking-backend/internal/repository"
	"github.com/marinapark/booking-backend/internal/telemetry"
)

// BookingService exposes the booking flow: create with hold and
// provider confirmation, list per user, room availability, and
// provider-side removal sync.
type BookingService interface {
	CreateBooking(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error)
	ListUserBookings(ctx context.Context, ownerID string, page, pageSize int) (*dto.ListBookingsResponse, error)
	RoomUnavailableDates(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error)
	SyncExternalRemoval(ctx context.Context, externalID string) (*dto.ExternalRemovalResponse, error)
}

type bookingService struct {
	unitRepo  repository.UnitRepository
	holdRepo  repository.HoldRepository
	orderRepo repository.OrderRepository
	provider  provider.Client
	limiter   ratelimit.Limiter
	captcha   captcha.Verifier
	publisher EventPublisher
	clk       clock.Clock
	cfg       *config.Config
	log       *zap.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	unitRepo repository.UnitRepository,
	holdRepo repository.HoldRepository,
	orderRepo repository.OrderRepository,
	providerClient provider.Client,
	limiter ratelimit.Limiter,
	captchaVerifier captcha.Verifier,
	publisher EventPublisher,
	clk clock.Clock,
	cfg *config.Config,
) BookingService {
	if clk == nil {
		clk = clock.New()
	}
	return &bookingService{
		unitRepo:  unitRepo,
		holdRepo:  holdRepo,
		orderRepo: orderRepo,
		provider:  providerClient,
		limiter:   limiter,
		captcha:   captchaVerifier,
		publisher: publisher,
		clk:       clk,
		cfg:       cfg,
		log:       logger.Get(),
	}
}

// CreateBooking runs the two-phase booking flow: guard checks, a local
// hold on the unit, the provider call, then local finalization. The
// provider call is the point of no return; once it succeeds the
// booking is real and every local failure after it degrades to
// pending_local_sync instead of an error.
func (s *bookingService) CreateBooking(ctx context.Context, req *dto.CreateBookingRequest, meta *dto.RequestMeta) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	kind, stay, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("booking.kind", string(kind)),
		attribute.String("booking.unit_id", req.UnitID),
		attribute.String("booking.date_range", stay.String()),
	)

	if meta.OwnerID == "" && s.cfg.Captcha.Enabled {
		if err := s.captcha.Verify(ctx, req.CaptchaToken, "create_booking_"+string(kind), meta.ClientIP); err != nil {
			return nil, err
		}
	}

	if s.cfg.RateLimit.Enabled {
		if err := s.limiter.Allow(ctx, s.buildAttempts(req, meta, stay)); err != nil {
			return nil, err
		}
	}

	unit, err := s.unitRepo.GetByID(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	if unit.RoomID != req.RoomID {
		return nil, fmt.Errorf("%w: unit does not belong to room %s", domain.ErrInvalidArgument, req.RoomID)
	}
	if unit.Kind != kind {
		return nil, fmt.Errorf("%w: unit is a %s unit", domain.ErrInvalidArgument, unit.Kind)
	}
	if req.ResourceID != 0 && req.ResourceID != unit.ResourceID {
		return nil, fmt.Errorf("%w: resource id mismatch", domain.ErrInvalidArgument)
	}

	now := s.clk.Now()
	hold, err := s.holdRepo.Create(ctx, repository.CreateHoldParams{
		HoldID:  uuid.NewString(),
		UnitID:  unit.ID,
		Kind:    kind,
		OwnerID: meta.OwnerID,
		Range:   stay,
		TTL:     s.cfg.Hold.TTL,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	order := s.buildOrder(req, meta, unit, stay, correlationID)

	// Provider call happens outside any transaction; it can take tens
	// of seconds and must not pin a database connection.
	result, err := s.provider.CreateBooking(ctx, &provider.BookingRequest{
		Kind:           kind,
		Range:          stay,
		ResourceID:     unit.ResourceID,
		Contact:        order.Contact,
		Adults:         order.Adults,
		Children:       order.Children,
		LicensePlate:   order.LicensePlate,
		IdempotencyKey: hold.ID,
		CorrelationID:  correlationID,
	})
	if err != nil {
		s.releaseHold(ctx, hold.ID, "provider call failed: "+err.Error())
		return nil, err
	}

	order.ID = result.BookingID

	finalize, err := s.orderRepo.Finalize(ctx, repository.FinalizeParams{
		HoldID: hold.ID,
		Order:  order,
		Now:    s.clk.Now(),
	})
	if err != nil {
		// The provider has the booking. Claiming failure here would
		// invite a duplicate attempt, so record the divergence and
		// answer success with a pending sync status.
		return s.fallbackPendingSync(ctx, hold.ID, order, unit, err), nil
	}

	order.Status = domain.OrderStatusConfirmed
	order.SyncStatus = domain.SyncStatusSynced
	_ = s.publisher.PublishBookingEvent(ctx, EventBookingConfirmed, order)

	s.log.Info("booking confirmed",
		zap.String("booking_id", order.ID),
		zap.String("unit_id", unit.ID),
		zap.String("correlation_id", correlationID),
		zap.Bool("already_existed", finalize.AlreadyExisted))

	resp := s.buildResponse(order, unit, string(domain.SyncStatusSynced))
	resp.AlreadyExisted = finalize.AlreadyExisted
	return resp, nil
}

func (s *bookingService) releaseHold(ctx context.Context, holdID, reason string) {
	if err := s.holdRepo.Release(ctx, holdID, domain.HoldStatusFailed, reason); err != nil {
		// The hold will expire on its own; losing the release only
		// delays the dates becoming available again.
		s.log.Warn("failed to release hold",
			zap.String("hold_id", holdID),
			zap.Error(err))
	}
}

func (s *bookingService) fallbackPendingSync(ctx context.Context, holdID string, order *domain.Order, unit *domain.Unit, cause error) *dto.CreateBookingResponse {
	s.log.Error("finalize failed after provider confirmation, parking for reconciliation",
		zap.String("booking_id", order.ID),
		zap.String("correlation_id", order.CorrelationID),
		zap.Error(cause))

	s.releaseHold(ctx, holdID, "finalize failed: "+cause.Error())

	order.Status = domain.OrderStatusPending
	order.SyncStatus = domain.SyncStatusPendingLocal
	order.UpdatedAt = s.clk.Now()

	if err := s.orderRepo.SavePendingSync(ctx, order, cause.Error()); err != nil {
		// Even persisting the divergence failed. The booking still
		// exists at the provider, so the caller still gets a success
		// answer; this log line is the only trail left.
		s.log.Error("failed to persist pending sync order",
			zap.String("booking_id", order.ID),
			zap.String("correlation_id", order.CorrelationID),
			zap.Error(err))
	}

	_ = s.publisher.PublishBookingEvent(ctx, EventBookingPendingSync, order)

	resp := s.buildResponse(order, unit, string(domain.SyncStatusPendingLocal))
	resp.Warning = "booking confirmed with the provider; local records will catch up shortly"
	return resp
}

func (s *bookingService) buildOrder(req *dto.CreateBookingRequest, meta *dto.RequestMeta, unit *domain.Unit, stay domain.DateRange, correlationID string) *domain.Order {
	nights := stay.Nights()
	return &domain.Order{
		OwnerID:    meta.OwnerID,
		Kind:       unit.Kind,
		RoomID:     unit.RoomID,
		UnitID:     unit.ID,
		ResourceID: unit.ResourceID,
		Range:      stay,
		Adults:     req.Adults,
		Children:   req.Children,
		Contact: domain.GuestContact{
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Email:     strings.TrimSpace(req.Email),
			Phone:     strings.TrimSpace(req.Phone),
		},
		LicensePlate:  strings.TrimSpace(req.LicensePlate),
		Nights:        nights,
		PricePerNight: unit.PricePerNight,
		TotalPrice:    int64(nights) * unit.PricePerNight,
		CorrelationID: correlationID,
	}
}

func (s *bookingService) buildResponse(order *domain.Order, unit *domain.Unit, syncStatus string) *dto.CreateBookingResponse {
	return &dto.CreateBookingResponse{
		BookingID:     order.ID,
		UnitName:      unit.Name,
		Kind:          string(order.Kind),
		CheckIn:       order.Range.Start.Format(domain.DayFormat),
		CheckOut:      order.Range.End.Format(domain.DayFormat),
		Nights:        order.Nights,
		Adults:        order.Adults,
		Children:      order.Children,
		TotalPrice:    order.TotalPrice,
		SyncStatus:    syncStatus,
		CorrelationID: order.CorrelationID,
	}
}

func (s *bookingService) validateRequest(req *dto.CreateBookingRequest) (domain.BookingKind, domain.DateRange, error) {
	kind := domain.BookingKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		return "", domain.DateRange{}, fmt.Errorf("%w: %q", domain.ErrInvalidKind, req.Kind)
	}

	stay, err := resolveStay(req)
	if err != nil {
		return "", domain.DateRange{}, err
	}

	if req.Adults < 1 {
		return "", domain.DateRange{}, fmt.Errorf("%w: at least one adult required", domain.ErrInvalidGuestCount)
	}
	if req.Children < 0 {
		return "", domain.DateRange{}, fmt.Errorf("%w: negative children count", domain.ErrInvalidGuestCount)
	}

	email := strings.TrimSpace(req.Email)
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return "", domain.DateRange{}, fmt.Errorf("%w: invalid email", domain.ErrInvalidContact)
	}
	for _, field := range []string{req.FirstName, req.LastName, req.Phone} {
		if strings.TrimSpace(field) == "" {
			return "", domain.DateRange{}, fmt.Errorf("%w: missing required field", domain.ErrInvalidContact)
		}
	}

	if req.LicensePlate != "" && !kind.AllowsLicensePlate() {
		return "", domain.DateRange{}, fmt.Errorf("%w: license plate only applies to camping bookings", domain.ErrInvalidArgument)
	}

	return kind, stay, nil
}

// resolveStay accepts either the raw calendar selection or the
// check-in/check-out pair. Calendar entries may carry a time part,
// which is ignored.
func resolveStay(req *dto.CreateBookingRequest) (domain.DateRange, error) {
	if len(req.Dates) > 0 {
		if len(req.Dates) < 2 {
			return domain.DateRange{}, fmt.Errorf("%w: a stay needs at least two days", domain.ErrInvalidDateRange)
		}
		first := strings.SplitN(strings.TrimSpace(req.Dates[0]), " ", 2)[0]
		last := strings.SplitN(strings.TrimSpace(req.Dates[len(req.Dates)-1]), " ", 2)[0]
		return domain.ParseDateRange(first, last)
	}
	return domain.ParseDateRange(req.CheckIn, req.CheckOut)
}

func (s *bookingService) buildAttempts(req *dto.CreateBookingRequest, meta *dto.RequestMeta, stay domain.DateRange) []ratelimit.Attempt {
	rl := s.cfg.RateLimit
	attempts := make([]ratelimit.Attempt, 0, 5)

	if meta.OwnerID != "" {
		attempts = append(attempts, ratelimit.Attempt{
			Dimension: "user",
			Key:       meta.OwnerID,
			Max:       rl.PerUser.MaxAttempts,
			Window:    rl.PerUser.Window,
		})
	}
	if meta.ClientIP != "" {
		attempts = append(attempts, ratelimit.Attempt{
			Dimension: "ip",
			Key:       ratelimit.HashKey(meta.ClientIP),
			Max:       rl.PerIP.MaxAttempts,
			Window:    rl.PerIP.Window,
		})
	}
	attempts = append(attempts, ratelimit.Attempt{
		Dimension: "email",
		Key:       ratelimit.HashKey(req.Email),
		Max:       rl.PerEmail.MaxAttempts,
		Window:    rl.PerEmail.Window,
	})
	device := meta.DeviceID
	if device == "" {
		device = req.DeviceID
	}
	if device != "" {
		attempts = append(attempts, ratelimit.Attempt{
			Dimension: "device",
			Key:       ratelimit.HashKey(device),
			Max:       rl.PerDevice.MaxAttempts,
			Window:    rl.PerDevice.Window,
		})
	}
	// Contention guard: many distinct callers hammering one unit and
	// check-in day share this budget.
	attempts = append(attempts, ratelimit.Attempt{
		Dimension: "unit_date",
		Key:       req.UnitID + ":" + stay.Start.Format(domain.DayFormat),
		Max:       rl.PerUnitDate.MaxAttempts,
		Window:    rl.PerUnitDate.Window,
	})

	return attempts
}

// ListUserBookings returns a page of the caller's bookings, newest first.
func (s *bookingService) ListUserBookings(ctx context.Context, ownerID string, page, pageSize int) (*dto.ListBookingsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user_bookings")
	defer span.End()

	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	views, err := s.orderRepo.ListViewsByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListBookingsResponse{
		Bookings: make([]dto.BookingSummary, 0, len(views)),
		Page:     page,
		PageSize: pageSize,
	}
	for _, v := range views {
		resp.Bookings = append(resp.Bookings, dto.BookingSummary{
			BookingID:  v.OrderID,
			Kind:       string(v.Kind),
			RoomID:     v.RoomID,
			UnitName:   v.UnitName,
			CheckIn:    v.Range.Start.Format(domain.DayFormat),
			CheckOut:   v.Range.End.Format(domain.DayFormat),
			Nights:     v.Nights,
			TotalPrice: v.TotalPrice,
			Status:     string(v.Status),
			SyncStatus: string(v.SyncStatus),
			CreatedAt:  v.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return resp, nil
}

// RoomUnavailableDates computes the days on which every unit of the
// room is occupied. A day blocked on one unit but free on another is
// still bookable.
func (s *bookingService) RoomUnavailableDates(ctx context.Context, roomID string) (*dto.UnavailableDatesResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.room_unavailable_dates")
	defer span.End()

	units, err := s.unitRepo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	bookings, err := s.unitRepo.ListBookingsByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// Count per day how many units are blocked; a day is unavailable
	// when that count reaches the unit count.
	blocked := make(map[string]map[string]struct{})
	for unitID, entries := range bookings {
		for _, entry := range entries {
			for _, day := range entry.Range.Days() {
				key := day.Format(domain.DayFormat)
				if blocked[key] == nil {
					blocked[key] = make(map[string]struct{})
				}
				blocked[key][unitID] = struct{}{}
			}
		}
	}

	var full []string
	for day, unitSet := range blocked {
		if len(unitSet) >= len(units) {
			full = append(full, day)
		}
	}
	sort.Strings(full)

	return &dto.UnavailableDatesResponse{
		RoomID:           roomID,
		UnavailableDates: full,
	}, nil
}

// SyncExternalRemoval frees the dates of a booking deleted at the
// provider side.
func (s *bookingService) SyncExternalRemoval(ctx context.Context, externalID string) (*dto.ExternalRemovalResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.sync_external_removal")
	defer span.End()

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty booking id", domain.ErrInvalidArgument)
	}

	removed, err := s.orderRepo.RemoveExternalBooking(ctx, externalID, s.clk.Now())
	if err != nil {
		return nil, err
	}

	if removed {
		if order, err := s.orderRepo.GetByID(ctx, externalID); err == nil {
			_ = s.publisher.PublishBookingEvent(ctx, EventBookingRemoved, order)
		}
		s.log.Info("external booking removal applied",
			zap.String("external_booking_id", externalID))
	} else {
		s.log.Warn("external booking removal matched nothing",
			zap.String("external_booking_id", externalID))
	}

	return &dto.ExternalRemovalResponse{ExternalID: externalID, Removed: removed}, nil
}
