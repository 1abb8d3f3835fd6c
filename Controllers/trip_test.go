package Controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Kestrel/Models"
	"Kestrel/Validators"
)

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	org     Models.Organization
	vehicle Models.Vehicle
	driver  Models.Driver
	user    Models.User
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Models.Migrate(db))

	org := Models.Organization{Name: "Acme Logistics"}
	require.NoError(t, db.Create(&org).Error)
	vehicle := Models.Vehicle{OrganizationID: org.ID, PlateNumber: "ABC 1234", RegistrationFingerprint: "1234"}
	require.NoError(t, db.Create(&vehicle).Error)
	driver := Models.Driver{OrganizationID: org.ID, Name: "Sami"}
	require.NoError(t, db.Create(&driver).Error)
	user := Models.User{OrganizationID: org.ID, Name: "Dispatcher", Email: "dispatch@acme.test", Permission: 2}
	require.NoError(t, db.Create(&user).Error)

	app := fiber.New()
	// Tests bypass the jwt cookie flow and inject the caller directly.
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})

	chain := Validators.NewChain(Validators.DefaultConfig())
	handler := NewTripHandler(db, chain)
	app.Post("/api/trips", handler.CreateTrip)
	app.Get("/api/trips", handler.GetAllTrips)
	app.Get("/api/trips/vehicle/:vehicle_id", handler.GetTripsForVehicle)
	app.Get("/api/trips/:id", handler.GetTrip)
	app.Put("/api/trips/:id", handler.UpdateTrip)
	app.Delete("/api/trips/:id", handler.DeleteTrip)

	return &testEnv{app: app, db: db, org: org, vehicle: vehicle, driver: driver, user: user}
}

type tripResponse struct {
	Message  string               `json:"message"`
	Data     Models.Trip          `json:"data"`
	Warnings []Validators.Warning `json:"warnings"`
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) createTrip(t *testing.T, start, end time.Time, startOdo, endOdo int) tripResponse {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/trips", fiber.Map{
		"vehicle_id":     e.vehicle.ID,
		"driver_id":      e.driver.ID,
		"start_time":     start,
		"end_time":       end,
		"start_odometer": startOdo,
		"end_odometer":   endOdo,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[tripResponse](t, resp)
}

func at(d, hour int) time.Time {
	return time.Date(2025, time.January, d, hour, 0, 0, 0, time.UTC)
}

func TestCreateAndReadBackTrip(t *testing.T) {
	env := setupEnv(t)

	created := env.createTrip(t, at(1, 8), at(1, 12), 100, 193)

	resp := env.request(t, http.MethodGet, fmt.Sprintf("/api/trips/%d", created.Data.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[tripResponse](t, resp)

	assert.Equal(t, 100, got.Data.StartOdometer)
	assert.Equal(t, 193, got.Data.EndOdometer)
	assert.Equal(t, env.vehicle.ID, got.Data.VehicleID)
	assert.Equal(t, "1234-00001", got.Data.SerialNumber)
	assert.Equal(t, Models.TripStatusActive, got.Data.Status)
	assert.Equal(t, env.user.Email, got.Data.CreatedBy)
}

func TestUpdateRejectsVehicleChange(t *testing.T) {
	env := setupEnv(t)
	other := Models.Vehicle{OrganizationID: env.org.ID, PlateNumber: "XYZ 9876", RegistrationFingerprint: "9876"}
	require.NoError(t, env.db.Create(&other).Error)

	created := env.createTrip(t, at(1, 8), at(1, 12), 100, 200)

	resp := env.request(t, http.MethodPut, fmt.Sprintf("/api/trips/%d", created.Data.ID), fiber.Map{
		"vehicle_id":   other.ID,
		"end_odometer": 500,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Nothing from the patch may be applied.
	var reloaded Models.Trip
	require.NoError(t, env.db.First(&reloaded, created.Data.ID).Error)
	assert.Equal(t, env.vehicle.ID, reloaded.VehicleID)
	assert.Equal(t, 200, reloaded.EndOdometer)
}

func TestUpdateAllowsOtherFields(t *testing.T) {
	env := setupEnv(t)
	created := env.createTrip(t, at(1, 8), at(1, 12), 100, 200)

	resp := env.request(t, http.MethodPut, fmt.Sprintf("/api/trips/%d", created.Data.ID), fiber.Map{
		"end_odometer": 220,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[tripResponse](t, resp)
	assert.Equal(t, 220, got.Data.EndOdometer)
	assert.Equal(t, env.vehicle.ID, got.Data.VehicleID)
}

func TestCreateRejectsBackwardOdometer(t *testing.T) {
	env := setupEnv(t)
	env.createTrip(t, at(1, 8), at(1, 12), 100, 200)
	env.createTrip(t, at(2, 8), at(2, 12), 200, 300)

	resp := env.request(t, http.MethodPost, "/api/trips", fiber.Map{
		"vehicle_id":     env.vehicle.ID,
		"driver_id":      env.driver.ID,
		"start_time":     at(3, 8),
		"end_time":       at(3, 12),
		"start_odometer": 150,
		"end_odometer":   250,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var count int64
	env.db.Model(&Models.Trip{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestCreateReturnsGapWarning(t *testing.T) {
	env := setupEnv(t)
	env.createTrip(t, at(1, 8), at(1, 12), 100, 200)

	created := env.createTrip(t, at(2, 8), at(2, 12), 500, 600)
	require.Len(t, created.Warnings, 1)
	assert.Equal(t, Validators.KindValidationWarning, created.Warnings[0].Kind)
	assert.Equal(t, 300, created.Warnings[0].GapKm)
}

func TestSchedulingConflictMapsToConflictStatus(t *testing.T) {
	env := setupEnv(t)
	env.createTrip(t, at(1, 8), at(1, 14), 100, 200)

	resp := env.request(t, http.MethodPost, "/api/trips", fiber.Map{
		"vehicle_id":     env.vehicle.ID,
		"driver_id":      env.driver.ID,
		"start_time":     at(1, 9),
		"end_time":       at(1, 13),
		"start_odometer": 200,
		"end_odometer":   260,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteTripIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	created := env.createTrip(t, at(1, 8), at(1, 12), 100, 200)
	path := fmt.Sprintf("/api/trips/%d", created.Data.ID)

	resp := env.request(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reloaded Models.Trip
	require.NoError(t, env.db.First(&reloaded, created.Data.ID).Error)
	assert.Equal(t, Models.TripStatusSoftDeleted, reloaded.Status)
}

func TestListTripsForVehicleOrdering(t *testing.T) {
	env := setupEnv(t)
	env.createTrip(t, at(3, 8), at(3, 12), 300, 400)
	env.createTrip(t, at(1, 8), at(1, 12), 100, 200)
	env.createTrip(t, at(2, 8), at(2, 12), 200, 300)

	resp := env.request(t, http.MethodGet,
		fmt.Sprintf("/api/trips/vehicle/%d", env.vehicle.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []Models.Trip `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 3)
	assert.True(t, body.Data[0].EndTime.Before(body.Data[1].EndTime))
	assert.True(t, body.Data[1].EndTime.Before(body.Data[2].EndTime))
}

func TestListTripsForVehicleExcludesDeletedByDefault(t *testing.T) {
	env := setupEnv(t)
	first := env.createTrip(t, at(1, 8), at(1, 12), 100, 200)
	env.createTrip(t, at(2, 8), at(2, 12), 200, 300)

	resp := env.request(t, http.MethodDelete, fmt.Sprintf("/api/trips/%d", first.Data.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []Models.Trip `json:"data"`
	}
	resp = env.request(t, http.MethodGet,
		fmt.Sprintf("/api/trips/vehicle/%d", env.vehicle.ID), nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Data, 1)

	resp = env.request(t, http.MethodGet,
		fmt.Sprintf("/api/trips/vehicle/%d?include_deleted=1", env.vehicle.ID), nil)
	body.Data = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Data, 2)
}

func TestCreateRejectsForeignVehicle(t *testing.T) {
	env := setupEnv(t)
	otherOrg := Models.Organization{Name: "Rival Fleet"}
	require.NoError(t, env.db.Create(&otherOrg).Error)
	foreign := Models.Vehicle{OrganizationID: otherOrg.ID, PlateNumber: "ZZZ 1111", RegistrationFingerprint: "1111"}
	require.NoError(t, env.db.Create(&foreign).Error)

	resp := env.request(t, http.MethodPost, "/api/trips", fiber.Map{
		"vehicle_id":     foreign.ID,
		"driver_id":      env.driver.ID,
		"start_time":     at(1, 8),
		"end_time":       at(1, 12),
		"start_odometer": 100,
		"end_odometer":   200,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
