package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueAndAuthorize(t *testing.T) {
	req := require.New(t)
	m, err := NewManager("s3cret", time.Hour)
	req.NoError(err)

	tok, err := m.Issue("B1", domain.RoleDriver)
	req.NoError(err)

	req.NoError(m.Authorize(tok, "B1", domain.RoleDriver))
	req.ErrorIs(m.Authorize(tok, "B1", domain.RolePassenger), domain.ErrUnauthorized)
	req.ErrorIs(m.Authorize(tok, "B2", domain.RoleDriver), ErrClaimsMismatch)
}

func TestManager_RejectsExpiredAndForeign(t *testing.T) {
	req := require.New(t)
	m, err := NewManager("s3cret", time.Minute)
	req.NoError(err)
	tok, err := m.Issue("B1", domain.RolePassenger)
	req.NoError(err)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = m.Parse(tok)
	req.ErrorIs(err, domain.ErrUnauthorized)

	other, err := NewManager("other", time.Minute)
	req.NoError(err)
	_, err = other.Parse(tok)
	req.ErrorIs(err, domain.ErrUnauthorized)

	_, err = other.Parse("")
	req.ErrorIs(err, ErrMissingToken)
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("  ", time.Minute)
	require.Error(t, err)
}

func TestFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest("GET", "/api/ws?token=abc", nil)
	req.Equal("abc", FromRequest(r))

	r.Header.Set("Authorization", "Bearer xyz")
	req.Equal("xyz", FromRequest(r))
}
