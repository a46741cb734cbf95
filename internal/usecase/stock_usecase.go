package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inventory/internal/authz"
	"inventory/internal/domain/model"
	repo "inventory/internal/repository"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 認可ゲートへの依存はこの形だけ
type AuthorizationGate interface {
	Authorize(ctx context.Context, token string, requiredRole string) (authz.Verdict, error)
}

// HTTP経由の在庫操作。全ての操作はidentityサービスの認可を通ってから実行する。
type StockUsecase struct {
	tx           repo.TransactionManager
	gate         AuthorizationGate
	requiredRole string
}

func NewStockUsecase(tx repo.TransactionManager, gate AuthorizationGate, requiredRole string) *StockUsecase {
	return &StockUsecase{tx: tx, gate: gate, requiredRole: requiredRole}
}

// authorize は拒否と判定不能を区別してHTTPエラーに変換する。
func (u *StockUsecase) authorize(ctx context.Context, token string) (authz.Verdict, error) {
	if strings.TrimSpace(token) == "" {
		return authz.Verdict{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	v, err := u.gate.Authorize(ctx, token, u.requiredRole)
	if err != nil {
		//タイムアウト等は「拒否」ではなく内部エラー
		return authz.Verdict{}, NewHTTPError(http.StatusInternalServerError, "authorization undetermined")
	}
	if !v.Valid {
		return authz.Verdict{}, NewHTTPError(http.StatusForbidden, "access denied")
	}
	return v, nil
}

type CreateItemInput struct {
	Name        string
	Description string
	Price       float64
}

func (u *StockUsecase) CreateItem(ctx context.Context, token string, in CreateItemInput) (model.Item, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return model.Item{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Item{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if in.Price <= 0 {
		return model.Item{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}

	var out model.Item

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//同じ会社に同名の品目は作らせない
		_, err := r.Items().FindByName(ctx, name, v.CompanyID)
		if err == nil {
			return NewHTTPError(http.StatusBadRequest, "item already exists")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//在庫0で作成。増減は台帳経由でのみ行う。
		item := model.Item{
			CompanyID:   v.CompanyID,
			Name:        name,
			Description: in.Description,
			Amount:      0,
			Price:       in.Price,
		}
		id, err := r.Items().Create(ctx, item)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		item.ItemID = id
		out = item
		return nil
	})

	if err != nil {
		return model.Item{}, err
	}
	return out, nil
}

type AdjustStockInput struct {
	ItemID int64
	Amount int64
}

// AddStock は入庫。在庫を増やして入庫トランザクションを記録する。
func (u *StockUsecase) AddStock(ctx context.Context, token string, in AdjustStockInput) (int64, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return 0, err
	}
	if in.ItemID <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid item_id")
	}
	if in.Amount <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid amount")
	}

	var txID int64

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.Items().FindByID(ctx, in.ItemID, v.CompanyID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "item not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Items().IncreaseAmount(ctx, in.ItemID, v.CompanyID, in.Amount); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		id, err := r.Transactions().Create(ctx, model.StockTransaction{
			ItemID:    in.ItemID,
			CompanyID: v.CompanyID,
			Type:      model.TransactionTypeInbound,
			Amount:    in.Amount,
			Cost:      float64(in.Amount) * item.Price,
			Date:      time.Now(),
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		txID = id
		return nil
	})

	if err != nil {
		return 0, err
	}
	return txID, nil
}

// SubtractStock は出庫。在庫が足りなければ何も書かずに400を返す。
func (u *StockUsecase) SubtractStock(ctx context.Context, token string, in AdjustStockInput) (int64, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return 0, err
	}
	if in.ItemID <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid item_id")
	}
	if in.Amount <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid amount")
	}

	var txID int64

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.Items().FindByID(ctx, in.ItemID, v.CompanyID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "item not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if item.Amount == 0 {
			return NewHTTPError(http.StatusBadRequest, "no stock to subtract")
		}

		//在庫が足りるときだけ減算（足りなければfalse）
		ok, err := r.Items().DecreaseAmountIfEnough(ctx, in.ItemID, v.CompanyID, in.Amount)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusBadRequest, "insufficient stock")
		}

		id, err := r.Transactions().Create(ctx, model.StockTransaction{
			ItemID:    in.ItemID,
			CompanyID: v.CompanyID,
			Type:      model.TransactionTypeOutbound,
			Amount:    in.Amount,
			Cost:      float64(in.Amount) * item.Price,
			Date:      time.Now(),
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		txID = id
		return nil
	})

	if err != nil {
		return 0, err
	}
	return txID, nil
}

func (u *StockUsecase) ListItems(ctx context.Context, token string) ([]model.Item, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err = r.Items().ListByCompanyID(ctx, v.CompanyID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (u *StockUsecase) GetItem(ctx context.Context, token string, itemID int64) (model.Item, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return model.Item{}, err
	}
	if itemID <= 0 {
		return model.Item{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out model.Item
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.Items().FindByID(ctx, itemID, v.CompanyID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "item not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = item
		return nil
	})
	if err != nil {
		return model.Item{}, err
	}
	return out, nil
}

type ListTransactionsInput struct {
	ItemID    *int64
	Type      *model.TransactionType
	StartDate *time.Time
	EndDate   *time.Time
}

func (u *StockUsecase) ListTransactions(ctx context.Context, token string, in ListTransactionsInput) ([]model.StockTransaction, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return nil, err
	}

	filter := repo.TransactionFilter{
		CompanyID: v.CompanyID,
		ItemID:    in.ItemID,
		Type:      in.Type,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}

	var txs []model.StockTransaction
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		txs, err = r.Transactions().List(ctx, filter)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (u *StockUsecase) GetTransaction(ctx context.Context, token string, id int64) (model.StockTransaction, error) {
	v, err := u.authorize(ctx, token)
	if err != nil {
		return model.StockTransaction{}, err
	}
	if id <= 0 {
		return model.StockTransaction{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out model.StockTransaction
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		tx, err := r.Transactions().FindByID(ctx, id, v.CompanyID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = tx
		return nil
	})
	if err != nil {
		return model.StockTransaction{}, err
	}
	return out, nil
}
