package main

import (
	"github.com/sirupsen/logrus"

	"Kestrel/CronJobs"
	"Kestrel/FiberConfig"
	"Kestrel/Models"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	Models.Connect()

	rollup := CronJobs.NewKPIRollup(Models.DB, true)
	if err := rollup.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start KPI rollup")
	}
	defer rollup.Stop()

	FiberConfig.FiberConfig(Models.DB)
}
