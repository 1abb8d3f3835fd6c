package Controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"Kestrel/Models"
	"Kestrel/Validators"
)

// ImportHandler is the privileged bulk-import path for historical trip
// migrations. The scheduling validator is bypassed because migrated fleets
// routinely carry overlapping legacy bookings; odometer continuity and
// vehicle binding still apply. The whole file commits or rolls back as one
// transaction.
type ImportHandler struct {
	DB    *gorm.DB
	Chain *Validators.Chain
}

func NewImportHandler(db *gorm.DB, chain *Validators.Chain) *ImportHandler {
	return &ImportHandler{DB: db, Chain: chain.WithoutScheduling()}
}

type importRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Expected sheet columns, after one header row:
// vehicle_id, driver_id, start_time, end_time, start_odometer, end_odometer
const importTimeLayout = "2006-01-02 15:04"

// ImportTrips ingests an xlsx of historical trips.
func (h *ImportHandler) ImportTrips(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Missing file upload",
			"error":   err.Error(),
		})
	}

	upload, err := fileHeader.Open()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Failed to open upload",
			"error":   err.Error(),
		})
	}
	defer upload.Close()

	book, err := excelize.OpenReader(upload)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid spreadsheet",
			"error":   err.Error(),
		})
	}
	defer book.Close()

	sheet := book.GetSheetName(0)
	rows, err := book.GetRows(sheet)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Failed to read sheet",
			"error":   err.Error(),
		})
	}
	if len(rows) < 2 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"message": "Sheet has no data rows",
		})
	}

	batchID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"batch_id":     batchID,
		"organization": user.OrganizationID,
		"rows":         len(rows) - 1,
	})
	log.Info("starting trip import")

	var rowErrors []importRowError
	imported := 0

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		for i, row := range rows[1:] {
			rowNum := i + 2
			req, parseErr := parseImportRow(row)
			if parseErr != nil {
				rowErrors = append(rowErrors, importRowError{Row: rowNum, Reason: parseErr.Error()})
				continue
			}

			vehicle, lookupErr := lookupTenantVehicle(tx, user.OrganizationID, req.VehicleID)
			if lookupErr != nil {
				rowErrors = append(rowErrors, importRowError{Row: rowNum, Reason: lookupErr.Error()})
				continue
			}

			serial, serialErr := nextSerialNumber(tx, vehicle)
			if serialErr != nil {
				return serialErr
			}

			trip := Models.Trip{
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

			if _, chainErr := h.Chain.Run(tx, nil, &trip); chainErr != nil {
				var verr *Validators.ValidationError
				if errors.As(chainErr, &verr) {
					rowErrors = append(rowErrors, importRowError{Row: rowNum, Reason: verr.Message})
					continue
				}
				return chainErr
			}
			if createErr := tx.Create(&trip).Error; createErr != nil {
				return createErr
			}
			imported++
		}

		// A migration either lands whole or not at all.
		if len(rowErrors) > 0 {
			return &Validators.ValidationError{
				Kind:    Validators.KindIntegrityViolation,
				Message: fmt.Sprintf("%d of %d rows failed validation", len(rowErrors), len(rows)-1),
			}
		}
		return nil
	})

	if err != nil {
		log.WithField("failed_rows", len(rowErrors)).Warn("trip import rolled back")
		var verr *Validators.ValidationError
		if errors.As(err, &verr) {
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"message":    verr.Message,
				"batch_id":   batchID,
				"row_errors": rowErrors,
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Import failed",
			"error":   err.Error(),
		})
	}

	log.WithField("imported", imported).Info("trip import committed")
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":  "Trips imported successfully",
		"batch_id": batchID,
		"imported": imported,
	})
}

func parseImportRow(row []string) (*CreateTripRequest, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("expected 6 columns, got %d", len(row))
	}

	vehicleID, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad vehicle_id %q", row[0])
	}
	driverID, err := strconv.ParseUint(row[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad driver_id %q", row[1])
	}
	startTime, err := time.Parse(importTimeLayout, row[2])
	if err != nil {
		return nil, fmt.Errorf("bad start_time %q", row[2])
	}
	endTime, err := time.Parse(importTimeLayout, row[3])
	if err != nil {
		return nil, fmt.Errorf("bad end_time %q", row[3])
	}
	if !startTime.Before(endTime) {
		return nil, fmt.Errorf("start_time %q is not before end_time %q", row[2], row[3])
	}
	startOdo, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("bad start_odometer %q", row[4])
	}
	endOdo, err := strconv.Atoi(row[5])
	if err != nil {
		return nil, fmt.Errorf("bad end_odometer %q", row[5])
	}

	return &CreateTripRequest{
		VehicleID:     uint(vehicleID),
		DriverID:      uint(driverID),
		StartTime:     startTime,
		EndTime:       endTime,
		StartOdometer: startOdo,
		EndOdometer:   endOdo,
	}, nil
}

func lookupTenantVehicle(tx *gorm.DB, organizationID uint, vehicleID uint) (*Models.Vehicle, error) {
	var vehicle Models.Vehicle
	if err := tx.Where("organization_id = ?", organizationID).
		First(&vehicle, vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("vehicle %d not found in organization", vehicleID)
		}
		return nil, err
	}
	return &vehicle, nil
}
