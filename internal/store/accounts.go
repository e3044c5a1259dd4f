package store

import (
	"context"

	"github.com/dcallahan11/resybot-open/internal/db"
)

const accountCols = `id,name,api_key,auth_token,payment_method_id,created_at`

func (r *Repo) CreateAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO accounts(name,api_key,auth_token,payment_method_id)
VALUES ($1,$2,$3,$4)
RETURNING id`,
		a.Name, a.APIKey, a.AuthToken, a.PaymentMethodID,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Name, &a.APIKey, &a.AuthToken, &a.PaymentMethodID, &a.CreatedAt)
	if err != nil {
		return Account{}, db.WrapNotFound(err)
	}
	return a, nil
}

func (r *Repo) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKey, &a.AuthToken, &a.PaymentMethodID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) AddProxy(ctx context.Context, url string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO proxies(url) VALUES ($1) RETURNING id`, url).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) ListProxies(ctx context.Context) ([]Proxy, error) {
	rows, err := r.db.Query(ctx, `SELECT id,url,created_at FROM proxies ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Proxy
	for rows.Next() {
		var p Proxy
		if err := rows.Scan(&p.ID, &p.URL, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteProxy(ctx context.Context, id int64) error {
	return r.db.Exec(ctx, `DELETE FROM proxies WHERE id=$1`, id)
}
