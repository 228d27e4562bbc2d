package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditions_BuildsPositionalWhere(t *testing.T) {
	var c Conditions
	c.Add("status = ?", "lead")
	c.Add("(first_name ILIKE ? OR email ILIKE ?)", "%an%", "%an%")
	page := c.Page(20, 40)

	assert.Equal(t, " WHERE status = $1 AND (first_name ILIKE $2 OR email ILIKE $3)", c.Where())
	assert.Equal(t, " LIMIT $4 OFFSET $5", page)
	assert.Equal(t, []interface{}{"lead", "%an%", "%an%", 20, 40}, c.Args())
}

func TestConditions_Empty(t *testing.T) {
	var c Conditions
	assert.Equal(t, "", c.Where())
	assert.Equal(t, "", c.Page(0, 0))
	assert.Empty(t, c.Args())
}
