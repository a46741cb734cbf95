package authz_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inventory/internal/authz"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================
// Fakes
// =====================

// 固定の応答を返すCaller
type scriptedCaller struct {
	reply json.RawMessage
	err   error
}

func (c *scriptedCaller) Call(ctx context.Context, payload any) (json.RawMessage, error) {
	return c.reply, c.err
}

// identityサービスの代役。リクエストの{token}をHS256 JWTとして検証し、
// 本物と同じ形の応答を返す。
type fakeIdentity struct {
	secret []byte
}

func (f *fakeIdentity) Call(ctx context.Context, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return json.RawMessage(`{"valid":false}`), nil
	}

	token, err := jwt.Parse(req.Token, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return f.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return json.RawMessage(`{"valid":false}`), nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return json.RawMessage(`{"valid":false}`), nil
	}

	role, _ := claims["role"].(string)
	companyID, _ := claims["company_id"].(float64)

	reply, _ := json.Marshal(map[string]any{
		"valid":     true,
		"role":      role,
		"companyId": int64(companyID),
	})
	return reply, nil
}

func signToken(t *testing.T, secret []byte, role string, companyID int64) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":        "user-1",
		"role":       role,
		"company_id": companyID,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

// =====================
// Tests
// =====================

func TestGate_Authorize_ValidTokenMatchingRole(t *testing.T) {
	secret := []byte("test_secret")
	gate := authz.NewGate(&fakeIdentity{secret: secret})

	token := signToken(t, secret, "ROLE_TECHNICIAN", 7)

	v, err := gate.Authorize(context.Background(), token, "ROLE_TECHNICIAN")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, int64(7), v.CompanyID)
	assert.Equal(t, "ROLE_TECHNICIAN", v.Role)
}

func TestGate_Authorize_WrongRoleDenied(t *testing.T) {
	secret := []byte("test_secret")
	gate := authz.NewGate(&fakeIdentity{secret: secret})

	token := signToken(t, secret, "ROLE_ADMIN", 7)

	v, err := gate.Authorize(context.Background(), token, "ROLE_TECHNICIAN")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestGate_Authorize_BadSignatureDenied(t *testing.T) {
	gate := authz.NewGate(&fakeIdentity{secret: []byte("real_secret")})

	token := signToken(t, []byte("wrong_secret"), "ROLE_TECHNICIAN", 7)

	v, err := gate.Authorize(context.Background(), token, "ROLE_TECHNICIAN")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestGate_Authorize_ErrorReplyDenied(t *testing.T) {
	gate := authz.NewGate(&scriptedCaller{reply: json.RawMessage(`{"error":"boom"}`)})

	v, err := gate.Authorize(context.Background(), "whatever", "ROLE_TECHNICIAN")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestGate_Authorize_MalformedReplyDenied(t *testing.T) {
	gate := authz.NewGate(&scriptedCaller{reply: json.RawMessage(`not json`)})

	v, err := gate.Authorize(context.Background(), "whatever", "ROLE_TECHNICIAN")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

// タイムアウトや接続断は「拒否」ではなく判定不能として返る
func TestGate_Authorize_TransportFailureUndetermined(t *testing.T) {
	gate := authz.NewGate(&scriptedCaller{err: errors.New("rpc: no matching reply before deadline")})

	_, err := gate.Authorize(context.Background(), "whatever", "ROLE_TECHNICIAN")
	assert.ErrorIs(t, err, authz.ErrUndetermined)
}
