package server

import (
	"os"
	"testing"

	"github.com/zhubert/plural-gateway/logger"
)

func TestMain(m *testing.M) {
	// Keep test runs out of the real gateway log
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}
