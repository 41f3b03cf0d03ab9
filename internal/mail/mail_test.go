// ABOUTME: Tests for mailer selection
// ABOUTME: Verifies the log mailer is chosen when SMTP is unconfigured

package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSelectsLogMailerWithoutHost(t *testing.T) {
	m := New(Config{From: "no-reply@parley.local"}, nil)
	_, ok := m.(*LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.SendPasswordReset(context.Background(), "a@x", "token"))
}

func TestNewSelectsSMTPMailerWithHost(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", Port: 587, From: "no-reply@parley.local"}, nil)
	_, ok := m.(*SMTPMailer)
	assert.True(t, ok)
}
