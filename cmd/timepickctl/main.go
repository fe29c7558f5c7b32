// Command timepickctl inspects and maintains a TimePick database directly.
// The bbolt driver locks its file, so stop the server before using it on
// a bbolt database.
package main

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.WithError(err).Error("timepickctl failed")
		os.Exit(1)
	}
}
