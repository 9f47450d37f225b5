package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsNotFoundErr(t *testing.T) {
	assert.True(t, IsNotFoundErr(gorm.ErrRecordNotFound))
	assert.True(t, IsNotFoundErr(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFoundErr(errors.New("connection reset")))
	assert.False(t, IsNotFoundErr(nil))
}
