package Controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Kestrel/Models"
	"Kestrel/Validators"
)

// TripHandler contains handler methods for trip routes
type TripHandler struct {
	DB       *gorm.DB
	Chain    *Validators.Chain
	validate *validator.Validate
}

// NewTripHandler creates a new trip handler
func NewTripHandler(db *gorm.DB, chain *Validators.Chain) *TripHandler {
	return &TripHandler{
		DB:       db,
		Chain:    chain,
		validate: validator.New(),
	}
}

type CreateTripRequest struct {
	VehicleID     uint      `json:"vehicle_id" validate:"required"`
	DriverID      uint      `json:"driver_id" validate:"required"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required"`
	StartOdometer int       `json:"start_odometer" validate:"gte=0"`
	EndOdometer   int       `json:"end_odometer" validate:"required,gte=0"`
}

// UpdateTripRequest is a partial patch. VehicleID is declared only so its
// presence can be rejected before anything else is applied.
type UpdateTripRequest struct {
	VehicleID     *uint      `json:"vehicle_id"`
	DriverID      *uint      `json:"driver_id"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	StartOdometer *int       `json:"start_odometer"`
	EndOdometer   *int       `json:"end_odometer"`
}

// CreateTrip inserts a new trip after running the full validator chain
// inside one transaction.
func (h *TripHandler) CreateTrip(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	req := new(CreateTripRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Missing or invalid fields",
			"error":   err.Error(),
		})
	}
	if !req.StartTime.Before(req.EndTime) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Start time must be before end time",
		})
	}

	var trip Models.Trip
	var result *Validators.Result
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		vehicle, err := h.tenantVehicle(tx, user.OrganizationID, req.VehicleID)
		if err != nil {
			return err
		}
		if err := h.tenantDriver(tx, user.OrganizationID, req.DriverID); err != nil {
			return err
		}

		serial, err := nextSerialNumber(tx, vehicle)
		if err != nil {
			return err
		}

		trip = Models.Trip{
			OrganizationID: user.OrganizationID,
			VehicleID:      req.VehicleID,
			DriverID:       req.DriverID,
			SerialNumber:   serial,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			StartOdometer:  req.StartOdometer,
			EndOdometer:    req.EndOdometer,
			Status:         Models.TripStatusActive,
			CreatedBy:      user.Email,
		}

		result, err = h.Chain.Run(tx, nil, &trip)
		if err != nil {
			return err
		}
		return tx.Create(&trip).Error
	})
	if err != nil {
		return respondWriteError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":  "Trip created successfully",
		"data":     trip,
		"warnings": result.Warnings,
	})
}

// UpdateTrip applies a partial patch to an active trip. A patch carrying
// vehicle_id is rejected outright and nothing else in it is applied.
func (h *TripHandler) UpdateTrip(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid ID",
			"error":   err.Error(),
		})
	}

	req := new(UpdateTripRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	var updated Models.Trip
	var result *Validators.Result
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var existing Models.Trip
		if err := Models.ActiveTrips(tx).
			Where("organization_id = ?", user.OrganizationID).
			First(&existing, id).Error; err != nil {
			return err
		}

		if req.VehicleID != nil {
			return &Validators.ValidationError{
				Kind: Validators.KindImmutableFieldViolation,
				Message: "trip " + existing.SerialNumber +
					" cannot change vehicle; the serial and odometer history are bound to it",
				Remediation: "delete this trip and create a new one with the correct vehicle",
				Context: map[string]interface{}{
					"trip_serial":          existing.SerialNumber,
					"vehicle_id":           existing.VehicleID,
					"attempted_vehicle_id": *req.VehicleID,
				},
			}
		}

		updated = existing
		if req.DriverID != nil {
			if err := h.tenantDriver(tx, user.OrganizationID, *req.DriverID); err != nil {
				return err
			}
			updated.DriverID = *req.DriverID
		}
		if req.StartTime != nil {
			updated.StartTime = *req.StartTime
		}
		if req.EndTime != nil {
			updated.EndTime = *req.EndTime
		}
		if req.StartOdometer != nil {
			updated.StartOdometer = *req.StartOdometer
		}
		if req.EndOdometer != nil {
			updated.EndOdometer = *req.EndOdometer
		}
		if !updated.StartTime.Before(updated.EndTime) {
			return &Validators.ValidationError{
				Kind:    Validators.KindInvalidRange,
				Message: "start time must be before end time",
			}
		}

		result, err = h.Chain.Run(tx, &existing, &updated)
		if err != nil {
			return err
		}
		return tx.Save(&updated).Error
	})
	if err != nil {
		return respondWriteError(c, err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":  "Trip updated successfully",
		"data":     updated,
		"warnings": result.Warnings,
	})
}

// DeleteTrip soft-deletes a trip. Deleting an already deleted trip returns
// the same ack, so callers can retry safely.
func (h *TripHandler) DeleteTrip(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid ID",
			"error":   err.Error(),
		})
	}

	var trip Models.Trip
	if err := h.DB.Where("organization_id = ?", user.OrganizationID).
		First(&trip, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{
				"message": "Trip not found",
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch trip",
			"error":   err.Error(),
		})
	}

	if trip.Status != Models.TripStatusSoftDeleted {
		if err := h.DB.Model(&trip).
			Update("status", Models.TripStatusSoftDeleted).Error; err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"message": "Failed to delete trip",
				"error":   err.Error(),
			})
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Trip deleted successfully",
	})
}

// GetTrip returns a specific trip by ID
func (h *TripHandler) GetTrip(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid ID",
			"error":   err.Error(),
		})
	}

	var trip Models.Trip
	result := h.DB.Where("organization_id = ?", user.OrganizationID).First(&trip, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{
				"message": "Trip not found",
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch trip",
			"error":   result.Error.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Trip retrieved successfully",
		"data":    trip,
	})
}

// GetAllTrips returns the organization's trips with pagination
func (h *TripHandler) GetAllTrips(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 10
	}
	offset := (page - 1) * limit

	query := h.DB.Model(&Models.Trip{}).
		Where("organization_id = ?", user.OrganizationID).
		Order("end_time DESC, id DESC")
	if c.Query("include_deleted") != "1" {
		query = Models.ActiveTrips(query)
	}

	var total int64
	query.Count(&total)

	var trips []Models.Trip
	result := query.Limit(limit).Offset(offset).Find(&trips)
	if result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch trips",
			"error":   result.Error.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Trips retrieved successfully",
		"data":    trips,
		"meta": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
			"pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// GetTripsForVehicle returns a vehicle's trips within an optional date
// range, ordered by end time ascending.
func (h *TripHandler) GetTripsForVehicle(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	vehicleID, err := strconv.ParseUint(c.Params("vehicle_id"), 10, 64)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid vehicle ID",
			"error":   err.Error(),
		})
	}

	query := h.DB.Model(&Models.Trip{}).
		Where("organization_id = ? AND vehicle_id = ?", user.OrganizationID, vehicleID).
		Order("end_time ASC")
	if c.Query("include_deleted") != "1" {
		query = Models.ActiveTrips(query)
	}

	if startDate := c.Query("start_date"); startDate != "" {
		from, err := parseDateParam(startDate, false)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid start_date",
				"error":   err.Error(),
			})
		}
		query = query.Where("end_time >= ?", from)
	}
	if endDate := c.Query("end_date"); endDate != "" {
		to, err := parseDateParam(endDate, true)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid end_date",
				"error":   err.Error(),
			})
		}
		query = query.Where("end_time <= ?", to)
	}

	var trips []Models.Trip
	if err := query.Find(&trips).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch trips",
			"error":   err.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Trips retrieved successfully",
		"data":    trips,
		"meta": fiber.Map{
			"vehicle_id": vehicleID,
			"count":      len(trips),
		},
	})
}

// tenantVehicle loads a vehicle and confirms it belongs to the caller's
// organization.
func (h *TripHandler) tenantVehicle(tx *gorm.DB, organizationID, vehicleID uint) (*Models.Vehicle, error) {
	var vehicle Models.Vehicle
	if err := tx.Where("organization_id = ?", organizationID).
		First(&vehicle, vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &Validators.ValidationError{
				Kind:    Validators.KindInvalidRange,
				Message: "vehicle does not exist in this organization",
			}
		}
		return nil, err
	}
	return &vehicle, nil
}

func (h *TripHandler) tenantDriver(tx *gorm.DB, organizationID, driverID uint) error {
	var driver Models.Driver
	if err := tx.Where("organization_id = ?", organizationID).
		First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Validators.ValidationError{
				Kind:    Validators.KindInvalidRange,
				Message: "driver does not exist in this organization",
			}
		}
		return err
	}
	return nil
}

// nextSerialNumber reads the vehicle's trip count under a row lock and
// derives the next serial. The lock keeps two concurrent inserts for the
// same vehicle from minting the same sequence.
func nextSerialNumber(tx *gorm.DB, vehicle *Models.Vehicle) (string, error) {
	var locked Models.Vehicle
	if err := Validators.RowLock(tx).First(&locked, vehicle.ID).Error; err != nil {
		return "", err
	}

	var count int64
	if err := tx.Model(&Models.Trip{}).
		Where("vehicle_id = ?", vehicle.ID).
		Count(&count).Error; err != nil {
		return "", err
	}
	return Models.BuildSerialNumber(vehicle.RegistrationFingerprint, count+1), nil
}

// respondWriteError maps validator rejections to structured HTTP responses
// and everything else to a 500.
func respondWriteError(c *fiber.Ctx, err error) error {
	var verr *Validators.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusUnprocessableEntity
		if verr.Kind == Validators.KindSchedulingConflict {
			status = http.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{
			"message": verr.Message,
			"error":   verr,
		})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"message": "Trip not found",
		})
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"message": "Failed to write trip",
		"error":   err.Error(),
	})
}

func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
