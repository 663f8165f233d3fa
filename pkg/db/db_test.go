package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"authbridge/pkg/config"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/app", redactDSN("postgres://user:secret@db:5432/app"))
	assert.Equal(t, "***@db/app", redactDSN("user:secret@db/app"))
	assert.Equal(t, "postgres://db/app", redactDSN("postgres://db/app"))
}

func TestUnconfiguredStoresAreNil(t *testing.T) {
	log := zap.NewNop().Sugar()
	assert.Nil(t, MustConnect(config.Config{}, log))
	assert.Nil(t, MustRedis(config.Config{}, log))
	assert.Nil(t, OpenSQL(nil))
}
