package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	assert.Equal(t, logrus.InfoLevel, Level())

	viper.Set("log-level", "warn")
	assert.Equal(t, logrus.WarnLevel, Level())

	viper.Set("debug", true)
	assert.Equal(t, logrus.DebugLevel, Level())
}
