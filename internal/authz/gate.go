package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// 可否を判定できなかった（タイムアウトやブローカー障害）。
// 「拒否」と区別するため、呼び出し側はこれを内部エラーとして扱う。
var ErrUndetermined = errors.New("authorization undetermined")

// RPCクライアントへの依存はこの形だけ
type Caller interface {
	Call(ctx context.Context, payload any) (json.RawMessage, error)
}

// 認可結果。Valid=falseは「アクセス拒否」を意味する。
type Verdict struct {
	Valid     bool
	CompanyID int64
	Role      string
}

// identityサービスの応答
type authReply struct {
	Valid     bool   `json:"valid"`
	Role      string `json:"role"`
	CompanyID int64  `json:"companyId"`
	Error     string `json:"error"`
}

// ブローカー越しにidentityサービスへ問い合わせる認可ゲート。
type Gate struct {
	rpc Caller
}

func NewGate(rpc Caller) *Gate {
	return &Gate{rpc: rpc}
}

// Authorize はtokenがrequiredRoleとして有効かを問い合わせる。
// valid=true かつ role一致 のときだけ許可。応答の形が想定外なら拒否。
// RPC自体の失敗（タイムアウト・接続断）はErrUndeterminedで返す。
func (g *Gate) Authorize(ctx context.Context, token string, requiredRole string) (Verdict, error) {
	raw, err := g.rpc.Call(ctx, map[string]string{"token": token})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUndetermined, err)
	}

	var reply authReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		//パースできない応答は拒否扱い（内部エラーにはしない）
		return Verdict{Valid: false}, nil
	}

	if reply.Valid && reply.Role == requiredRole {
		return Verdict{Valid: true, CompanyID: reply.CompanyID, Role: reply.Role}, nil
	}
	return Verdict{Valid: false}, nil
}
