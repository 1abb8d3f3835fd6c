package FiberConfig

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"Kestrel/Controllers"
	"Kestrel/Validators"
	"Kestrel/middleware"
)

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	chain := Validators.NewChain(Validators.LoadConfig())

	authHandler := Controllers.NewAuthHandler(db)
	tripHandler := Controllers.NewTripHandler(db, chain)
	kpiHandler := Controllers.NewKPIHandler(db)
	importHandler := Controllers.NewImportHandler(db, chain)

	api := app.Group("/api")

	// Auth routes
	api.Post("/login", authHandler.Login)
	api.Post("/logout", authHandler.Logout)
	api.Post("/register", middleware.Verify(4), authHandler.Register)

	// Trip routes
	trips := api.Group("/trips", middleware.Verify(1))
	trips.Get("/", tripHandler.GetAllTrips)
	trips.Get("/vehicle/:vehicle_id", tripHandler.GetTripsForVehicle)
	trips.Get("/:id", tripHandler.GetTrip)
	trips.Post("/", middleware.Verify(2), tripHandler.CreateTrip)
	trips.Put("/:id", middleware.Verify(2), tripHandler.UpdateTrip)
	trips.Delete("/:id", middleware.Verify(2), tripHandler.DeleteTrip)

	// Privileged historical migration path
	trips.Post("/import", middleware.Verify(4), importHandler.ImportTrips)

	// Dashboard read side
	kpi := api.Group("/kpi", middleware.Verify(1))
	kpi.Get("/cards", kpiHandler.GetKPICards)
	api.Get("/feed", middleware.Verify(1), kpiHandler.GetEventsFeed)
}

func FiberConfig(db *gorm.DB) {
	app := fiber.New()

	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           300,
	}))

	SetupRoutes(app, db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logrus.WithField("port", port).Info("server up")
	if err := app.Listen(":" + port); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
