package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// StartCPU begins CPU profiling into the given file and returns the stop
// function to be called on shutdown.
func StartCPU(path string) func() {
	logrus.WithField("path", path).Info("starting CPU profiling")

	file, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).Fatal("could not create CPU profile")
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		logrus.WithError(err).Fatal("could not start CPU profile")
	}

	return func() {
		pprof.StopCPUProfile()

		if err := file.Close(); err != nil {
			logrus.WithError(err).Error("could not close CPU profile")
		}
	}
}

// CaptureHeap returns a function that writes a heap profile to the given
// file. Meant to run once, on shutdown.
func CaptureHeap(path string) func() {
	return func() {
		logrus.WithField("path", path).Info("writing heap profile")

		file, err := os.Create(path)
		if err != nil {
			logrus.WithError(err).Fatal("could not create memory profile")
		}
		defer func() {
			if err := file.Close(); err != nil {
				logrus.WithError(err).Error("could not close memory profile")
			}
		}()

		runtime.GC()

		if err := pprof.WriteHeapProfile(file); err != nil {
			logrus.WithError(err).Fatal("could not write memory profile")
		}
	}
}
